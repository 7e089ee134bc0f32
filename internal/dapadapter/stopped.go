package dapadapter

import "strings"

// StoppedReason is the front-end vocabulary spec.md §4.5 maps MI stop
// reasons onto.
type StoppedReason struct {
	Reason      string // "breakpoint", "step", "data breakpoint", "signal", "exception", ""
	Text        string // populated for signal stops: the signal name
	Terminated  bool   // true when the MI reason was "exited-normally"
}

// mapping is the fixed table from spec.md §4.5 "stopped event translation".
var mapping = map[string]string{
	"breakpoint-hit":      "breakpoint",
	"end-stepping-range":  "step",
	"function-finished":   "step",
	"watchpoint-trigger":  "data breakpoint",
}

// TranslateStopReason maps an MI `*stopped` record's `reason` attribute
// (and, for signal stops, its `signal-name`) to the front-end's stopped
// event vocabulary. An unrecognized reason is passed through verbatim so
// the front-end at least sees something rather than nothing.
func TranslateStopReason(miReason, signalName string) StoppedReason {
	if miReason == "exited-normally" {
		return StoppedReason{Terminated: true}
	}
	if miReason == "signal-received" {
		name := signalName
		if name == "" {
			name = "SIGTRAP"
		}
		return StoppedReason{Reason: "signal", Text: strings.ToUpper(name)}
	}
	if mapped, ok := mapping[miReason]; ok {
		return StoppedReason{Reason: mapped}
	}
	return StoppedReason{Reason: miReason}
}

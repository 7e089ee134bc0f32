package mi

import (
	"strconv"
	"strings"
)

// ResultClass tags the five MI result variants (spec.md §3 "MIResult").
type ResultClass int

const (
	ResultDone ResultClass = iota
	ResultRunning
	ResultConnected
	ResultError
	ResultExit
)

func (c ResultClass) String() string {
	switch c {
	case ResultDone:
		return "done"
	case ResultRunning:
		return "running"
	case ResultConnected:
		return "connected"
	case ResultError:
		return "error"
	case ResultExit:
		return "exit"
	default:
		return "unknown"
	}
}

var resultClassNames = map[string]ResultClass{
	"done":      ResultDone,
	"running":   ResultRunning,
	"connected": ResultConnected,
	"error":     ResultError,
	"exit":      ResultExit,
}

// ResultRecord is a parsed `^...` line, optionally carrying the correlation
// token that the command router assigned to the originating command.
type ResultRecord struct {
	Token *uint32
	Class ResultClass
	Attrs Value // KindTuple of the attribute list

	// ErrorMessage/ErrorCode are populated only when Class == ResultError.
	ErrorMessage string
	ErrorCode    string
}

// AsyncKind distinguishes the three async record markers.
type AsyncKind int

const (
	AsyncExec AsyncKind = iota
	AsyncStatus
	AsyncNotify
)

// AsyncRecord is a parsed `*`/`+`/`=` line. Class is left as the raw MI
// identifier (e.g. "stopped", "thread-created", "breakpoint-modified")
// since GDB's async vocabulary is open-ended across versions.
type AsyncRecord struct {
	Token *uint32
	Kind  AsyncKind
	Class string
	Attrs Value
}

// StreamChannel distinguishes the three stream record markers.
type StreamChannel int

const (
	StreamConsole StreamChannel = iota
	StreamTarget
	StreamLog
)

// StreamRecord is a parsed `~`/`@`/`&` line.
type StreamRecord struct {
	Channel StreamChannel
	Text    string
}

// RecordKind tags which of the five possible parses of a raw MI output
// line a Record holds.
type RecordKind int

const (
	RecordResult RecordKind = iota
	RecordAsync
	RecordStream
	RecordPrompt     // the "(gdb)" line, a delimiter only
	RecordMalformed  // unparseable; caller must emit a log stream event and skip
)

// Record is the tagged union ParseLine returns.
type Record struct {
	Kind   RecordKind
	Result *ResultRecord
	Async  *AsyncRecord
	Stream *StreamRecord
	Raw    string // original line text; always set, used for RecordMalformed
}

// ParseLine parses one line of GDB/MI output. It never returns an error:
// malformed input yields RecordMalformed so the caller can surface it as a
// log stream event and keep the stream alive (spec.md §4.1 failure mode).
func ParseLine(line string) Record {
	trimmed := strings.TrimRight(line, "\r\n")
	if trimmed == "" {
		return Record{Kind: RecordMalformed, Raw: line}
	}
	if trimmed == "(gdb)" {
		return Record{Kind: RecordPrompt, Raw: line}
	}

	i := 0
	for i < len(trimmed) && trimmed[i] >= '0' && trimmed[i] <= '9' {
		i++
	}
	if i >= len(trimmed) {
		return Record{Kind: RecordMalformed, Raw: line}
	}

	var token *uint32
	if i > 0 {
		if v, err := strconv.ParseUint(trimmed[:i], 10, 32); err == nil {
			t := uint32(v)
			token = &t
		}
	}

	marker := trimmed[i]
	rest := trimmed[i+1:]

	switch marker {
	case '^':
		rec, err := parseResult(token, rest)
		if err != nil {
			return Record{Kind: RecordMalformed, Raw: line}
		}
		return Record{Kind: RecordResult, Result: rec, Raw: line}
	case '*', '+', '=':
		kind := map[byte]AsyncKind{'*': AsyncExec, '+': AsyncStatus, '=': AsyncNotify}[marker]
		rec, err := parseAsync(token, kind, rest)
		if err != nil {
			return Record{Kind: RecordMalformed, Raw: line}
		}
		return Record{Kind: RecordAsync, Async: rec, Raw: line}
	case '~', '@', '&':
		channel := map[byte]StreamChannel{'~': StreamConsole, '@': StreamTarget, '&': StreamLog}[marker]
		text, err := ParseCString(rest)
		if err != nil {
			return Record{Kind: RecordMalformed, Raw: line}
		}
		return Record{Kind: RecordStream, Stream: &StreamRecord{Channel: channel, Text: text}, Raw: line}
	default:
		return Record{Kind: RecordMalformed, Raw: line}
	}
}

func splitClassAndAttrs(rest string) (class, attrs string) {
	idx := strings.IndexByte(rest, ',')
	if idx < 0 {
		return rest, ""
	}
	return rest[:idx], rest[idx+1:]
}

func parseResult(token *uint32, rest string) (*ResultRecord, error) {
	classStr, attrStr := splitClassAndAttrs(rest)
	class, ok := resultClassNames[classStr]
	if !ok {
		return nil, errUnknownClass(classStr)
	}
	attrs, err := ParseAttrList(attrStr)
	if err != nil {
		return nil, err
	}
	rec := &ResultRecord{Token: token, Class: class, Attrs: attrs}
	if class == ResultError {
		if msg, ok := attrs.GetString("msg"); ok {
			rec.ErrorMessage = msg
		}
		if code, ok := attrs.GetString("code"); ok {
			rec.ErrorCode = code
		}
	}
	return rec, nil
}

func parseAsync(token *uint32, kind AsyncKind, rest string) (*AsyncRecord, error) {
	class, attrStr := splitClassAndAttrs(rest)
	if class == "" {
		return nil, errUnknownClass(class)
	}
	attrs, err := ParseAttrList(attrStr)
	if err != nil {
		return nil, err
	}
	return &AsyncRecord{Token: token, Kind: kind, Class: class, Attrs: attrs}, nil
}

type unknownClassError string

func (e unknownClassError) Error() string { return "mi: unknown class " + string(e) }

func errUnknownClass(s string) error { return unknownClassError(s) }

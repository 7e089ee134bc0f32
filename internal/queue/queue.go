// Package queue implements C4, the command queue and run-state
// coordinator: it serializes MI command execution against GDB's observed
// run-state and enforces the pause-if-needed policy, per spec.md §4.4.
//
// Grounded in shape on the teacher's internal/executor.TransactionEngine
// (transaction.go): a phase-driven state machine that runs steps in order
// and rolls back on failure. That engine's read/analyze/modify/verify
// phases generalize here to Idle/CommandInFlight/PausingForInspection/
// InspectingWhilePaused/ResumingAfterInspection/TargetRunning, and its
// rollback-on-failure shape becomes "always issue the resume class again
// after a transient pause, even if the needs-stopped command errored".
package queue

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/stratos/gdbmiadapter/internal/adaptererrors"
	"github.com/stratos/gdbmiadapter/internal/mi"
)

// State is one of the six run-state-coordinator states (spec.md §9).
type State int

const (
	Idle State = iota
	CommandInFlight
	PausingForInspection
	InspectingWhilePaused
	ResumingAfterInspection
	TargetRunning
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case CommandInFlight:
		return "CommandInFlight"
	case PausingForInspection:
		return "PausingForInspection"
	case InspectingWhilePaused:
		return "InspectingWhilePaused"
	case ResumingAfterInspection:
		return "ResumingAfterInspection"
	case TargetRunning:
		return "TargetRunning"
	default:
		return "Unknown"
	}
}

// resumeVerbs is the fixed set of MI and CLI resume commands (spec.md
// §4.4). Matched against the command's leading token, case-sensitively —
// GDB's own verbs are case-sensitive.
var resumeVerbs = map[string]bool{
	"-exec-continue": true, "-exec-step": true, "-exec-next": true,
	"-exec-finish": true, "-exec-run": true, "-exec-return": true,
	"-exec-jump": true, "-exec-until": true,
	"continue": true, "c": true, "step": true, "s": true,
	"stepi": true, "si": true, "next": true, "n": true,
	"nexti": true, "ni": true, "finish": true, "fin": true,
	"run": true, "r": true, "start": true, "starti": true,
	"advance": true, "until": true, "u": true, "jump": true,
	"j": true, "fg": true,
}

// Classification describes how a command is scheduled.
type Classification struct {
	Resume          bool
	NeedsStopped    bool
	AuxiliaryEager  bool // serviceable on the auxiliary connection (evaluate, varobj ops, memory rw)
	SteppingVerb    bool // subset of Resume that gets the response-timeout treatment
}

// Classify inspects the leading verb of an MI command line (without its
// token prefix) and returns its scheduling classification.
func Classify(verb string, needsStopped, auxiliaryEager bool) Classification {
	resume := resumeVerbs[verb]
	return Classification{
		Resume:         resume,
		NeedsStopped:   needsStopped,
		AuxiliaryEager: auxiliaryEager,
		SteppingVerb:   steppingVerbs[verb],
	}
}

var steppingVerbs = map[string]bool{
	"-exec-step": true, "-exec-next": true, "-exec-finish": true,
	"step": true, "s": true, "stepi": true, "si": true,
	"next": true, "n": true, "nexti": true, "ni": true,
	"finish": true, "fin": true,
}

// Submitter is the C3 surface the coordinator drives commands through.
type Submitter interface {
	Submit(ctx context.Context, text string) (mi.ResultRecord, error)
}

// AuxiliaryRouter optionally services auxiliary-eligible needs-stopped
// commands without pausing the primary target (spec.md §4.7). Healthy
// reports whether the auxiliary connection currently exists and is usable.
type AuxiliaryRouter interface {
	Healthy() bool
	Submit(ctx context.Context, text string) (mi.ResultRecord, error)
}

// Coordinator owns run-state tracking and enforces §4.4's scheduling
// rules on top of a Submitter. One Coordinator per GDB session.
type Coordinator struct {
	primary   Submitter
	auxiliary AuxiliaryRouter // nil if not configured
	logger    *zap.Logger

	async   bool
	nonStop bool

	state        State
	running      bool // process-global run-state in all-stop mode
	resumeInFlight bool

	steppingTimeout time.Duration // default 100ms, <=0 disables the timeout wrapper

	// interrupt is invoked to request GDB stop the target (`-exec-interrupt`);
	// awaitStop blocks until the session's stop tracking observes the
	// resulting stop, supplied as a func so the coordinator stays decoupled
	// from C1's record stream.
	interrupt func(ctx context.Context) error
	awaitStop func(ctx context.Context) error
}

// Config configures a Coordinator.
type Config struct {
	Async           bool
	NonStop         bool
	SteppingTimeout time.Duration // default 100ms if zero; negative disables
	Interrupt       func(ctx context.Context) error
	AwaitStop       func(ctx context.Context) error
}

func New(primary Submitter, auxiliary AuxiliaryRouter, cfg Config, logger *zap.Logger) *Coordinator {
	timeout := cfg.SteppingTimeout
	if timeout == 0 {
		timeout = 100 * time.Millisecond
	}
	return &Coordinator{
		primary:         primary,
		auxiliary:       auxiliary,
		logger:          logger,
		async:           cfg.Async,
		nonStop:         cfg.NonStop,
		state:           Idle,
		steppingTimeout: timeout,
		interrupt:       cfg.Interrupt,
		awaitStop:       cfg.AwaitStop,
	}
}

// State returns the coordinator's current state, for diagnostics/tests.
func (c *Coordinator) State() State { return c.state }

// SetRunning updates the process-global run-state observed from *running
// / *stopped async records (all-stop mode). In non-stop mode the caller
// tracks per-thread state in C5 and is expected to call this only to
// reflect whether *any* thread is running, per spec.md §4.4's process-
// global semantics for all-stop.
func (c *Coordinator) SetRunning(running bool) {
	c.running = running
	if running {
		c.state = TargetRunning
		c.resumeInFlight = true
	} else {
		c.resumeInFlight = false
		if c.state == TargetRunning {
			c.state = Idle
		}
	}
}

// Execute runs one command through the coordinator, applying
// classification-driven scheduling. text is the MI command text without
// its token prefix; verb is its leading token used for classification.
func (c *Coordinator) Execute(ctx context.Context, verb, text string, class Classification) (mi.ResultRecord, error) {
	if class.Resume {
		return c.executeResume(ctx, text)
	}
	if class.NeedsStopped && c.running {
		return c.executeWithPauseIfNeeded(ctx, text, class)
	}
	c.state = CommandInFlight
	res, err := c.primary.Submit(ctx, text)
	c.settleAfterCommand()
	return res, err
}

func (c *Coordinator) executeResume(ctx context.Context, text string) (mi.ResultRecord, error) {
	if c.async && !c.nonStop && c.resumeInFlight {
		return mi.ResultRecord{}, &adaptererrors.ProtocolError{Request: text, Reason: "a resume command is already running"}
	}
	c.state = CommandInFlight
	res, err := c.primary.Submit(ctx, text)
	if err == nil {
		c.resumeInFlight = true
		c.running = true
		c.state = TargetRunning
	}
	return res, err
}

// executeWithPauseIfNeeded implements spec.md §4.4's four-step
// pause-if-needed policy, including the auxiliary short-circuit.
func (c *Coordinator) executeWithPauseIfNeeded(ctx context.Context, text string, class Classification) (mi.ResultRecord, error) {
	if class.AuxiliaryEager && c.auxiliary != nil && c.auxiliary.Healthy() {
		return c.auxiliary.Submit(ctx, text)
	}

	c.state = PausingForInspection
	if c.interrupt != nil {
		if err := c.interrupt(ctx); err != nil {
			c.state = TargetRunning
			return mi.ResultRecord{}, adaptererrors.Wrap(err, "pause-if-needed: interrupt")
		}
	}
	if c.awaitStop != nil {
		if err := c.awaitStop(ctx); err != nil {
			c.state = TargetRunning
			return mi.ResultRecord{}, adaptererrors.Wrap(err, "pause-if-needed: await stop")
		}
	}
	c.running = false

	c.state = InspectingWhilePaused
	res, cmdErr := c.primary.Submit(ctx, text)

	c.state = ResumingAfterInspection
	_, resumeErr := c.primary.Submit(ctx, "-exec-continue")
	if resumeErr == nil {
		c.running = true
		c.resumeInFlight = true
		c.state = TargetRunning
	} else {
		c.state = Idle
	}

	if cmdErr != nil {
		return mi.ResultRecord{}, cmdErr
	}
	return res, nil
}

func (c *Coordinator) settleAfterCommand() {
	if !c.running {
		c.state = Idle
	}
}

// SteppingResult is what ExecuteStepping returns: either the command's
// own response arrived first, or the timer fired first and a late error
// (if any) must later be surfaced as output, never as a second response.
type SteppingResult struct {
	Result    mi.ResultRecord
	Err       error
	TimedOut  bool
	LateErrCh <-chan error // non-nil only when TimedOut; receives the eventual result/err, nil on success
}

// ExecuteStepping runs a stepping command (step-in/step-out/next) under
// the §4.4 timeout wrapper: whichever of the command's own completion or
// the timer fires first resolves the caller; the other path is
// suppressed but, on the timed-out branch, still delivered on LateErrCh
// so the caller can emit the required output{category=console} event
// without producing a duplicate response (spec.md §4.4, §6 StepTimeoutLate).
func (c *Coordinator) ExecuteStepping(ctx context.Context, text string) SteppingResult {
	c.state = CommandInFlight
	resultCh := make(chan mi.ResultRecord, 1)
	errCh := make(chan error, 1)
	go func() {
		res, err := c.primary.Submit(ctx, text)
		resultCh <- res
		errCh <- err
	}()

	if c.steppingTimeout <= 0 {
		res := <-resultCh
		err := <-errCh
		c.afterStepping(err)
		return SteppingResult{Result: res, Err: err}
	}

	timer := time.NewTimer(c.steppingTimeout)
	defer timer.Stop()
	select {
	case res := <-resultCh:
		err := <-errCh
		c.afterStepping(err)
		return SteppingResult{Result: res, Err: err}
	case <-timer.C:
		late := make(chan error, 1)
		go func() {
			err := <-errCh
			c.afterStepping(err)
			late <- err
		}()
		return SteppingResult{TimedOut: true, LateErrCh: late}
	}
}

func (c *Coordinator) afterStepping(err error) {
	if err == nil {
		c.running = true
		c.resumeInFlight = true
		c.state = TargetRunning
	} else {
		c.resumeInFlight = false
		c.state = Idle
	}
}

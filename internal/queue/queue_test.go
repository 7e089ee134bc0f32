package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/stratos/gdbmiadapter/internal/mi"
)

type fakeSubmitter struct {
	calls []string
	delay time.Duration
	err   error
}

func (f *fakeSubmitter) Submit(ctx context.Context, text string) (mi.ResultRecord, error) {
	f.calls = append(f.calls, text)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return mi.ResultRecord{}, ctx.Err()
		}
	}
	if f.err != nil {
		return mi.ResultRecord{}, f.err
	}
	return mi.ResultRecord{Class: mi.ResultDone}, nil
}

func TestClassifyResumeVerbs(t *testing.T) {
	for _, verb := range []string{"-exec-continue", "continue", "c", "next", "n", "step", "finish"} {
		c := Classify(verb, false, false)
		if !c.Resume {
			t.Errorf("verb %q should classify as resume", verb)
		}
	}
	c := Classify("-var-create", true, false)
	if c.Resume {
		t.Error("-var-create should not classify as resume")
	}
	if !c.NeedsStopped {
		t.Error("-var-create should classify as needs-stopped when flagged")
	}
}

func TestExecuteSimpleCommandWhenStopped(t *testing.T) {
	sub := &fakeSubmitter{}
	c := New(sub, nil, Config{}, zap.NewNop())
	_, err := c.Execute(context.Background(), "-var-create", "-var-create - * x", Classify("-var-create", true, false))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sub.calls) != 1 {
		t.Fatalf("expected exactly one submit, got %d", len(sub.calls))
	}
}

func TestPauseIfNeededWhenRunning(t *testing.T) {
	sub := &fakeSubmitter{}
	var interrupted, awaited bool
	c := New(sub, nil, Config{
		Interrupt: func(ctx context.Context) error { interrupted = true; return nil },
		AwaitStop: func(ctx context.Context) error { awaited = true; return nil },
	}, zap.NewNop())
	c.SetRunning(true)

	_, err := c.Execute(context.Background(), "-data-read-memory-bytes", "-data-read-memory-bytes 0x0 1", Classify("-data-read-memory-bytes", true, false))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !interrupted || !awaited {
		t.Fatal("expected interrupt and await-stop to be invoked")
	}
	// command itself, then the resume back to running
	if len(sub.calls) != 2 {
		t.Fatalf("expected 2 submits (command + resume), got %d: %v", len(sub.calls), sub.calls)
	}
	if sub.calls[1] != "-exec-continue" {
		t.Fatalf("expected second submit to re-resume, got %q", sub.calls[1])
	}
	if c.State() != TargetRunning {
		t.Fatalf("expected state TargetRunning after resume, got %v", c.State())
	}
}

type fakeAux struct {
	healthy bool
	calls   []string
}

func (a *fakeAux) Healthy() bool { return a.healthy }
func (a *fakeAux) Submit(ctx context.Context, text string) (mi.ResultRecord, error) {
	a.calls = append(a.calls, text)
	return mi.ResultRecord{Class: mi.ResultDone}, nil
}

func TestAuxiliaryEagerSkipsPause(t *testing.T) {
	sub := &fakeSubmitter{}
	aux := &fakeAux{healthy: true}
	interruptCalled := false
	c := New(sub, aux, Config{
		Interrupt: func(ctx context.Context) error { interruptCalled = true; return nil },
	}, zap.NewNop())
	c.SetRunning(true)

	_, err := c.Execute(context.Background(), "-var-evaluate-expression", "-var-evaluate-expression x", Classify("-var-evaluate-expression", true, true))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if interruptCalled {
		t.Fatal("auxiliary-eligible command should not trigger pause-if-needed")
	}
	if len(aux.calls) != 1 || len(sub.calls) != 0 {
		t.Fatalf("expected the auxiliary connection to service the command, got aux=%v primary=%v", aux.calls, sub.calls)
	}
}

func TestResumeRejectedWhenAlreadyInFlight(t *testing.T) {
	sub := &fakeSubmitter{}
	c := New(sub, nil, Config{Async: true}, zap.NewNop())

	_, err := c.Execute(context.Background(), "-exec-continue", "-exec-continue", Classify("-exec-continue", false, false))
	if err != nil {
		t.Fatalf("unexpected error on first resume: %v", err)
	}
	_, err = c.Execute(context.Background(), "-exec-continue", "-exec-continue", Classify("-exec-continue", false, false))
	if err == nil {
		t.Fatal("expected second resume to be rejected while one is in flight")
	}
}

func TestExecuteSteppingRespondsBeforeTimeout(t *testing.T) {
	sub := &fakeSubmitter{delay: 5 * time.Millisecond}
	c := New(sub, nil, Config{SteppingTimeout: 100 * time.Millisecond}, zap.NewNop())

	res := c.ExecuteStepping(context.Background(), "-exec-next")
	if res.TimedOut {
		t.Fatal("expected the fast command to win the race")
	}
	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
}

func TestExecuteSteppingTimesOutThenDeliversLateError(t *testing.T) {
	wantErr := errors.New("boom")
	sub := &fakeSubmitter{delay: 60 * time.Millisecond, err: wantErr}
	c := New(sub, nil, Config{SteppingTimeout: 10 * time.Millisecond}, zap.NewNop())

	res := c.ExecuteStepping(context.Background(), "-exec-step")
	if !res.TimedOut {
		t.Fatal("expected the timer to win the race")
	}
	select {
	case err := <-res.LateErrCh:
		if err != wantErr {
			t.Fatalf("expected late error %v, got %v", wantErr, err)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for the late error")
	}
}

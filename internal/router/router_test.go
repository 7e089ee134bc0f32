package router

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/stratos/gdbmiadapter/internal/adaptererrors"
	"github.com/stratos/gdbmiadapter/internal/mi"
)

type fakeWriter struct {
	mu    sync.Mutex
	lines []string
}

func (w *fakeWriter) SendCommand(line string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lines = append(w.lines, line)
	return nil
}

func TestSubmitTokensAreMonotonicAndUnique(t *testing.T) {
	w := &fakeWriter{}
	r := New(w, zap.NewNop())

	seen := make(map[uint32]bool)
	var mu sync.Mutex
	var wg sync.WaitGroup
	results := make(chan uint32, 50)

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_, _ = r.Submit(ctx, "-exec-continue")
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	// Resolve everything that gets written, in whatever order arrives.
	deadline := time.After(2 * time.Second)
	resolved := 0
	for resolved < 50 {
		w.mu.Lock()
		pendingLines := append([]string(nil), w.lines...)
		w.lines = nil
		w.mu.Unlock()

		for _, line := range pendingLines {
			var token uint32
			fmt.Sscanf(line, "%d", &token)
			mu.Lock()
			if seen[token] {
				t.Fatalf("token %d reused", token)
			}
			seen[token] = true
			mu.Unlock()
			if r.Resolve(mi.ResultRecord{Token: &token, Class: mi.ResultDone}) {
				resolved++
			}
		}
		select {
		case <-deadline:
			t.Fatalf("timed out resolving commands, resolved=%d", resolved)
		default:
		}
	}
	for tok := uint32(1); tok <= 50; tok++ {
		if !seen[tok] {
			t.Fatalf("expected tokens 1..50 to be assigned in increasing sequence, token %d missing", tok)
		}
	}
}

func TestFailAllFailsPendingSubmits(t *testing.T) {
	w := &fakeWriter{}
	r := New(w, zap.NewNop())

	errCh := make(chan error, 1)
	go func() {
		_, err := r.Submit(context.Background(), "-exec-continue")
		errCh <- err
	}()

	// give the goroutine a moment to register in pending
	time.Sleep(20 * time.Millisecond)
	r.FailAll("gdb exited")

	select {
	case err := <-errCh:
		var se *adaptererrors.SessionEnded
		if err == nil {
			t.Fatalf("expected SessionEnded error, got nil")
		}
		if !asSessionEnded(err, &se) {
			t.Fatalf("expected SessionEnded, got %v (%T)", err, err)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for failed submit")
	}
}

func asSessionEnded(err error, target **adaptererrors.SessionEnded) bool {
	se, ok := err.(*adaptererrors.SessionEnded)
	if ok {
		*target = se
	}
	return ok
}

func TestResolveUnknownTokenIsTolerated(t *testing.T) {
	w := &fakeWriter{}
	r := New(w, zap.NewNop())
	token := uint32(999)
	if r.Resolve(mi.ResultRecord{Token: &token, Class: mi.ResultDone}) {
		t.Fatal("expected Resolve to report no match for an unknown token")
	}
}

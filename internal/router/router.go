// Package router implements C3, the command router: token assignment,
// atomic writes to GDB's stdin, and resolution of per-command response
// futures from incoming `^`-records.
//
// Grounded in shape (not code) on the teacher's internal/tools.Registry —
// a sync.RWMutex-guarded map with Register/Get/Delete semantics — adapted
// here from "named tool" to "in-flight correlation token".
package router

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/stratos/gdbmiadapter/internal/adaptererrors"
	"github.com/stratos/gdbmiadapter/internal/mi"
)

// Writer is the minimal surface the router needs from a GDB connection:
// atomic per-line writes to stdin. Satisfied by *process.GDB and, for the
// auxiliary connection, the same type again.
type Writer interface {
	SendCommand(line string) error
}

type outcome struct {
	result mi.ResultRecord
	err    error
}

// Router assigns monotonically increasing tokens to submitted MI command
// text, and resolves the matching response future when C1 delivers the
// `^`-record carrying that token (spec.md §4.3).
type Router struct {
	mu        sync.Mutex
	nextToken uint32
	pending   map[uint32]chan outcome
	writer    Writer
	logger    *zap.Logger
}

// New constructs a Router writing commands through writer.
func New(writer Writer, logger *zap.Logger) *Router {
	return &Router{
		pending: make(map[uint32]chan outcome),
		writer:  writer,
		logger:  logger,
	}
}

// Submit assigns the next token, writes "{token}{text}" to GDB's stdin,
// and blocks until the matching `^`-record resolves it, the context is
// cancelled, or the session ends (via Fail/FailAll). The token is never
// reused, satisfying spec.md §8's "strictly greater than any previously
// assigned token" invariant even across retries.
func (r *Router) Submit(ctx context.Context, text string) (mi.ResultRecord, error) {
	r.mu.Lock()
	r.nextToken++
	token := r.nextToken
	ch := make(chan outcome, 1)
	r.pending[token] = ch
	r.mu.Unlock()

	line := fmt.Sprintf("%d%s", token, text)
	if err := r.writer.SendCommand(line); err != nil {
		r.drop(token)
		return mi.ResultRecord{}, adaptererrors.Wrap(err, "router: write command")
	}

	select {
	case out := <-ch:
		return out.result, out.err
	case <-ctx.Done():
		r.drop(token)
		return mi.ResultRecord{}, ctx.Err()
	}
}

func (r *Router) drop(token uint32) {
	r.mu.Lock()
	delete(r.pending, token)
	r.mu.Unlock()
}

// Resolve delivers a parsed `^`-record to its waiting Submit call. It
// returns false if no pending entry matched the record's token (already
// resolved, or a token GDB echoed that we never assigned — tolerated,
// not an error, per spec.md §4.1's general tolerance policy).
func (r *Router) Resolve(rec mi.ResultRecord) bool {
	if rec.Token == nil {
		return false
	}
	r.mu.Lock()
	ch, ok := r.pending[*rec.Token]
	if ok {
		delete(r.pending, *rec.Token)
	}
	r.mu.Unlock()
	if !ok {
		return false
	}
	ch <- outcome{result: rec}
	return true
}

// FailAll fails every pending Submit with a SessionEnded error, draining
// the pending map. Called on GDB death or explicit session teardown
// (spec.md §4.3, §4.4 Cancellation).
func (r *Router) FailAll(reason string) {
	r.mu.Lock()
	pending := r.pending
	r.pending = make(map[uint32]chan outcome)
	r.mu.Unlock()

	err := &adaptererrors.SessionEnded{Reason: reason}
	for _, ch := range pending {
		ch <- outcome{err: err}
	}
}

// Pending returns the count of in-flight commands.
func (r *Router) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

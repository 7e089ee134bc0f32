package process

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/stratos/gdbmiadapter/internal/adaptererrors"
	"github.com/stratos/gdbmiadapter/internal/mi"
)

// GDB supervises the main GDB child in MI mode. It is a thin, domain-typed
// wrapper around Supervisor that parses stdout as MI records instead of
// raw lines, and republishes stderr lines as log-stream records. Stderr
// text therefore carries no separate "stderr" marking downstream: it
// reaches the front-end as output-category "log" text.
type GDB struct {
	*Supervisor
	records chan mi.Record
	logger  *zap.Logger
}

// SpawnGDB starts `gdbPath --interpreter=mi2 -q` (or equivalent) so every
// line of stdout is MI grammar, per spec.md §4.2.
func SpawnGDB(ctx context.Context, gdbPath string, extraArgs []string, env []string, logger *zap.Logger) (*GDB, error) {
	args := append([]string{"--interpreter=mi2", "-q", "--nx"}, extraArgs...)
	sup, err := Spawn(ctx, "gdb", gdbPath, args, env, "", logger)
	if err != nil {
		return nil, &adaptererrors.SpawnError{Program: gdbPath, Cause: err}
	}

	g := &GDB{Supervisor: sup, records: make(chan mi.Record, 256), logger: logger}
	go g.translate()
	return g, nil
}

// translate re-parses the raw stdout Event stream as MI records, and
// republishes each stderr line verbatim as a log-stream record (the same
// shape used for malformed stdout lines), so callers forward it as an
// output{category=log} event, not as output{category=stderr}.
func (g *GDB) translate() {
	for ev := range g.Supervisor.Events() {
		switch ev.Kind {
		case EventStdout:
			rec := mi.ParseLine(ev.Line)
			if rec.Kind == mi.RecordMalformed {
				g.logger.Warn("gdb: malformed MI line, skipping", zap.String("line", ev.Line))
				rec = mi.Record{
					Kind:   mi.RecordStream,
					Stream: &mi.StreamRecord{Channel: mi.StreamLog, Text: ev.Line},
					Raw:    ev.Line,
				}
			}
			g.records <- rec
		case EventStderr:
			g.records <- mi.Record{
				Kind:   mi.RecordStream,
				Stream: &mi.StreamRecord{Channel: mi.StreamLog, Text: ev.Line},
				Raw:    ev.Line,
			}
		case EventExit:
			close(g.records)
			return
		}
	}
}

// Records returns the parsed MI record stream. Closed when GDB exits.
func (g *GDB) Records() <-chan mi.Record { return g.records }

// SendCommand writes a raw MI command line (already including its token
// prefix) to GDB's stdin. Ordering/atomicity guarantees come from
// Supervisor.Write; the router is the only caller.
func (g *GDB) SendCommand(line string) error { return g.Supervisor.Write(line) }

// AwaitBanner blocks (with timeout) until GDB's first "(gdb)" prompt is
// seen, confirming the MI interpreter accepted startup — the second half
// of spec.md §4.2's "startup synchronisation".
func (g *GDB) AwaitBanner(ctx context.Context, records <-chan mi.Record, timeout time.Duration) error {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		select {
		case rec, ok := <-records:
			if !ok {
				return &adaptererrors.SessionEnded{Reason: "gdb exited before MI banner"}
			}
			if rec.Kind == mi.RecordPrompt {
				return nil
			}
		case <-deadline.C:
			return fmt.Errorf("gdb: timed out waiting for MI banner")
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// IsStderrNoise reports whether a GDB stderr line carries no text (empty
// or whitespace only). No other line is treated as noise.
func IsStderrNoise(line string) bool {
	line = strings.TrimSpace(line)
	return line == ""
}

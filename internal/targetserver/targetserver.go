// Package targetserver supervises the external target-server process
// (the gdbserver-class executable that hosts the inferior for remote
// sessions) and implements port discovery: scanning its stdout/stderr for
// a configurable "ready" regular expression that captures the listening
// port, per spec.md §4.2 and §6.
package targetserver

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/stratos/gdbmiadapter/internal/adaptererrors"
	"github.com/stratos/gdbmiadapter/internal/process"
)

// DefaultArgs is used when the launch configuration does not override
// target.serverParameters (spec.md §6 "Target-server wire").
var DefaultArgs = []string{"--once", ":0"}

// DefaultReadyPattern matches "Listening on port 1234" and captures the
// port number, the documented default readiness regex.
const DefaultReadyPattern = `Listening on port ([0-9]+)`

// Config configures one target-server launch.
type Config struct {
	Program        string
	Args           []string // full argv after Program; without serverParameters the caller passes DefaultArgs plus the program under test
	Env            []string
	Dir            string
	ReadyPattern   string        // compiles to DefaultReadyPattern if empty
	PresetPort     int           // if >0, port discovery is skipped
	StartupTimeout time.Duration // default 10s
	PostMatchDelay time.Duration // delay applied after the ready line matches
}

// Server is a running target-server instance plus its discovered port.
type Server struct {
	*process.Supervisor
	Port int
}

// Launch starts the target server and blocks until either its readiness
// marker is observed (or the preset port makes discovery unnecessary) or
// its startup timeout elapses, per spec.md §4.2 "startup synchronisation".
func Launch(ctx context.Context, cfg Config, logger *zap.Logger) (*Server, error) {
	if cfg.StartupTimeout <= 0 {
		cfg.StartupTimeout = 10 * time.Second
	}
	pattern := cfg.ReadyPattern
	if pattern == "" {
		pattern = DefaultReadyPattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("targetserver: invalid ready pattern %q: %w", pattern, err)
	}

	sup, err := process.Spawn(ctx, "target-server", cfg.Program, cfg.Args, cfg.Env, cfg.Dir, logger)
	if err != nil {
		return nil, &adaptererrors.SpawnError{Program: cfg.Program, Cause: err}
	}

	if cfg.PresetPort > 0 {
		return &Server{Supervisor: sup, Port: cfg.PresetPort}, nil
	}

	port, err := awaitReady(ctx, sup, re, cfg.StartupTimeout, logger)
	if err != nil {
		var stderrTail string
		sup.Kill(fmt.Errorf("target server failed to become ready"))
		return nil, &adaptererrors.SpawnError{Program: cfg.Program, Stderr: stderrTail, Cause: err}
	}

	if cfg.PostMatchDelay > 0 {
		select {
		case <-time.After(cfg.PostMatchDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return &Server{Supervisor: sup, Port: port}, nil
}

// awaitReady scans stdout+stderr lines against re until a match is found,
// the process exits early, or timeout elapses.
func awaitReady(ctx context.Context, sup *process.Supervisor, re *regexp.Regexp, timeout time.Duration, logger *zap.Logger) (int, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	var stderrBuf []string
	for {
		select {
		case ev, ok := <-sup.Events():
			if !ok {
				return 0, fmt.Errorf("target server exited before becoming ready:\n%s", joinLines(stderrBuf))
			}
			switch ev.Kind {
			case process.EventStdout, process.EventStderr:
				if ev.Kind == process.EventStderr {
					stderrBuf = append(stderrBuf, ev.Line)
				}
				if m := re.FindStringSubmatch(ev.Line); m != nil {
					port, err := strconv.Atoi(m[1])
					if err != nil {
						logger.Warn("targetserver: ready pattern matched non-numeric port", zap.String("line", ev.Line))
						continue
					}
					return port, nil
				}
			case process.EventExit:
				return 0, fmt.Errorf("target server exited (%v) before becoming ready:\n%s", ev.Err, joinLines(stderrBuf))
			}
		case <-deadline.C:
			return 0, fmt.Errorf("target server startup timed out after %s", timeout)
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}

func joinLines(lines []string) string {
	out := ""
	for _, l := range lines {
		out += l + "\n"
	}
	return out
}

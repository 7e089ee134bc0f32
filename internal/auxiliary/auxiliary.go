// Package auxiliary implements C7, the auxiliary GDB connection: a
// second GDB instance attached to the same remote target, used to
// service read-only inspection while the primary target runs without a
// pause/resume round-trip, per spec.md §4.7.
//
// Grounded in shape on the teacher's internal/process (process
// supervision reused verbatim via process.GDB) plus internal/router's
// Submit/Resolve pattern, run a second time against a second child.
package auxiliary

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/stratos/gdbmiadapter/internal/adaptererrors"
	"github.com/stratos/gdbmiadapter/internal/mi"
	"github.com/stratos/gdbmiadapter/internal/process"
	"github.com/stratos/gdbmiadapter/internal/router"
)

// ValidateLaunchConfig enforces spec.md §4.7's launch-time precondition:
// auxiliaryGdb=true requires gdbAsync=true and gdbNonStop=false. Returns
// a *adaptererrors.ConfigError carrying the required sentinel message
// when violated, nil otherwise.
func ValidateLaunchConfig(auxiliaryGdb, gdbAsync, gdbNonStop bool) error {
	if !auxiliaryGdb {
		return nil
	}
	if !gdbAsync {
		return adaptererrors.NewAuxiliaryRequiresAsyncError()
	}
	if gdbNonStop {
		return adaptererrors.NewAuxiliaryIncompatibleWithNonStopError()
	}
	return nil
}

// Connection is the auxiliary GDB instance plus its own command router.
// It mirrors the primary connection's C1–C3 wiring but exists purely to
// serve auxiliary-eligible needs-stopped commands.
type Connection struct {
	gdb    *process.GDB
	router *router.Router
	logger *zap.Logger

	healthy atomic.Bool
	mu      sync.Mutex
}

// Config configures the auxiliary launch; it reuses the primary's target
// destination since "the auxiliary shares the target server of the
// primary" (spec.md §4.7 Lifecycle).
type Config struct {
	GDBPath         string
	ExtraArgs       []string
	Env             []string
	ConnectCommands []string // MI/CLI lines to reach the same remote target, e.g. "-target-select remote host:port"
	StartupTimeout  time.Duration
}

// Launch spawns the auxiliary GDB, waits for its MI banner, and replays
// ConnectCommands to join the same remote target session the primary is
// debugging.
func Launch(ctx context.Context, cfg Config, logger *zap.Logger) (*Connection, error) {
	if cfg.StartupTimeout <= 0 {
		cfg.StartupTimeout = 10 * time.Second
	}
	gdb, err := process.SpawnGDB(ctx, cfg.GDBPath, cfg.ExtraArgs, cfg.Env, logger)
	if err != nil {
		return nil, err
	}
	if err := gdb.AwaitBanner(ctx, gdb.Records(), cfg.StartupTimeout); err != nil {
		gdb.Kill(err)
		return nil, err
	}

	c := &Connection{gdb: gdb, logger: logger}
	c.router = router.New(gdb, logger)
	c.healthy.Store(true)
	go c.pump()

	for _, line := range cfg.ConnectCommands {
		if _, err := c.router.Submit(ctx, line); err != nil {
			c.healthy.Store(false)
			gdb.Kill(err)
			return nil, adaptererrors.Wrap(err, "auxiliary: connect command failed")
		}
	}
	return c, nil
}

// pump feeds parsed MI records from the auxiliary GDB into its router,
// and marks the connection unhealthy when GDB dies — per spec.md §4.7
// "its death does not kill the session".
func (c *Connection) pump() {
	for rec := range c.gdb.Records() {
		switch rec.Kind {
		case mi.RecordResult:
			c.router.Resolve(*rec.Result)
		default:
			// Async/stream records from the auxiliary connection are not
			// forwarded as session events; the auxiliary exists purely to
			// answer inspection commands.
		}
	}
	c.healthy.Store(false)
	c.router.FailAll("auxiliary gdb exited")
}

// Healthy reports whether the auxiliary connection can currently service
// commands.
func (c *Connection) Healthy() bool { return c.healthy.Load() }

// Submit runs an MI command on the auxiliary connection.
func (c *Connection) Submit(ctx context.Context, text string) (mi.ResultRecord, error) {
	if !c.Healthy() {
		return mi.ResultRecord{}, &adaptererrors.SessionEnded{Reason: "auxiliary gdb not available"}
	}
	return c.router.Submit(ctx, text)
}

// Close terminates the auxiliary GDB instance. Safe to call even if the
// connection already died on its own.
func (c *Connection) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gdb.Running() {
		c.gdb.Kill(nil)
	}
}

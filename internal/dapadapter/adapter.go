package dapadapter

import (
	"bufio"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/go-dap"
	"go.uber.org/zap"

	"github.com/stratos/gdbmiadapter/internal/adaptererrors"
	"github.com/stratos/gdbmiadapter/internal/auxiliary"
	"github.com/stratos/gdbmiadapter/internal/launchconfig"
	"github.com/stratos/gdbmiadapter/internal/mi"
	"github.com/stratos/gdbmiadapter/internal/process"
	"github.com/stratos/gdbmiadapter/internal/queue"
	"github.com/stratos/gdbmiadapter/internal/router"
	"github.com/stratos/gdbmiadapter/internal/session"
	"github.com/stratos/gdbmiadapter/internal/targetserver"
)

// Session drives one front-end connection end to end: the byte-stream
// protocol loop, the GDB child, and every piece of C1–C7 wired together.
// Grounded in dispatch shape on the buildg-derived docker-buildx DAP
// server (onXxxRequest methods switched on concrete *dap.XxxRequest
// types, a send() helper serializing responses back over the wire).
type Session struct {
	conn   net.Conn
	sendMu sync.Mutex
	logger *zap.Logger

	gdb    *process.GDB
	router *router.Router
	coord  *queue.Coordinator
	state  *session.State
	vars   *VarobjEngine
	aux    *auxiliary.Connection

	cfg launchconfig.Config

	targetSrv *targetserver.Server

	disconnected bool

	stopMu   sync.Mutex
	stopCh   chan struct{} // closed and replaced each time a stop is observed

	transientMu   sync.Mutex
	transientStop bool // set by the coordinator just before it sends -exec-interrupt
}

// NewSession constructs a Session bound to conn; GDB itself is spawned
// lazily on the incoming launch/attach request (spec.md §4.5 Initialize).
func NewSession(conn net.Conn, logger *zap.Logger) *Session {
	return &Session{conn: conn, logger: logger, stopCh: make(chan struct{})}
}

// awaitStop blocks until the next *stopped async record is observed, or
// ctx is cancelled. Used by the queue.Coordinator's pause-if-needed path
// to confirm -exec-interrupt actually landed before issuing the
// inspection command.
func (s *Session) awaitStop(ctx context.Context) error {
	s.stopMu.Lock()
	ch := s.stopCh
	s.stopMu.Unlock()
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) signalStop() {
	s.stopMu.Lock()
	close(s.stopCh)
	s.stopCh = make(chan struct{})
	s.stopMu.Unlock()
}

// markTransientStop flags that the next *stopped record is the direct
// result of the coordinator's own pause-if-needed -exec-interrupt, not a
// stop the front-end asked for. Called right before that interrupt is
// sent, since GDB may deliver the resulting *stopped record before
// SendCommand itself returns.
func (s *Session) markTransientStop() {
	s.transientMu.Lock()
	s.transientStop = true
	s.transientMu.Unlock()
}

// consumeTransientStop reports and clears the transient-stop flag, so
// exactly one *stopped record — the one pause-if-needed is waiting on —
// is suppressed from the front-end per call to markTransientStop.
func (s *Session) consumeTransientStop() bool {
	s.transientMu.Lock()
	defer s.transientMu.Unlock()
	wasTransient := s.transientStop
	s.transientStop = false
	return wasTransient
}

// Serve reads protocol messages from the connection until EOF or a
// disconnect request, dispatching each to its handler.
func (s *Session) Serve(ctx context.Context) error {
	r := bufio.NewReader(s.conn)
	for {
		msg, err := dap.ReadProtocolMessage(r)
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		s.handle(ctx, msg)
		if s.disconnected {
			return nil
		}
	}
}

func (s *Session) send(message dap.Message) {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if err := dap.WriteProtocolMessage(s.conn, message); err != nil {
		s.logger.Warn("dapadapter: failed to write message", zap.Error(err))
	}
}

func newResponse(requestSeq int, command string) dap.Response {
	return dap.Response{
		ProtocolMessage: dap.ProtocolMessage{Type: "response"},
		Command:         command,
		RequestSeq:      requestSeq,
		Success:         true,
	}
}

func newEvent(event string) dap.Event {
	return dap.Event{ProtocolMessage: dap.ProtocolMessage{Type: "event"}, Event: event}
}

func (s *Session) sendErrorResponse(requestSeq int, command, message string) {
	resp := &dap.ErrorResponse{Response: newResponse(requestSeq, command)}
	resp.Success = false
	resp.Message = message
	resp.Body.Error = &dap.ErrorMessage{Format: message}
	s.send(resp)
}

func (s *Session) outputEvent(category, text string) {
	s.send(&dap.OutputEvent{Event: newEvent("output"), Body: dap.OutputEventBody{Category: category, Output: text}})
}

func (s *Session) handle(ctx context.Context, request dap.Message) {
	switch req := request.(type) {
	case *dap.InitializeRequest:
		s.onInitialize(req)
	case *dap.LaunchRequest:
		s.onLaunch(ctx, req, false)
	case *dap.AttachRequest:
		s.onLaunch(ctx, &dap.LaunchRequest{Request: req.Request, Arguments: req.Arguments}, true)
	case *dap.DisconnectRequest:
		s.onDisconnect(req)
	case *dap.SetBreakpointsRequest:
		s.onSetBreakpoints(ctx, req)
	case *dap.SetFunctionBreakpointsRequest:
		s.onSetFunctionBreakpoints(ctx, req)
	case *dap.SetInstructionBreakpointsRequest:
		s.onSetInstructionBreakpoints(ctx, req)
	case *dap.RestartRequest:
		s.onRestart(ctx, req)
	case *dap.ConfigurationDoneRequest:
		resp := &dap.ConfigurationDoneResponse{Response: newResponse(req.Seq, req.Command)}
		s.send(resp)
	case *dap.ThreadsRequest:
		s.onThreads(ctx, req)
	case *dap.StackTraceRequest:
		s.onStackTrace(ctx, req)
	case *dap.ScopesRequest:
		s.onScopes(req)
	case *dap.VariablesRequest:
		s.onVariables(ctx, req)
	case *dap.SetVariableRequest:
		s.onSetVariable(ctx, req)
	case *dap.EvaluateRequest:
		s.onEvaluate(ctx, req)
	case *dap.ContinueRequest:
		s.onResume(ctx, req.Request, "-exec-continue")
	case *dap.NextRequest:
		s.onStepping(ctx, req.Request, "-exec-next")
	case *dap.StepInRequest:
		s.onStepping(ctx, req.Request, "-exec-step")
	case *dap.StepOutRequest:
		s.onStepping(ctx, req.Request, "-exec-finish")
	case *dap.PauseRequest:
		s.onPause(ctx, req)
	case *dap.ReadMemoryRequest:
		s.onReadMemory(ctx, req)
	case *dap.WriteMemoryRequest:
		s.onWriteMemory(ctx, req)
	case *dap.DisassembleRequest:
		s.onDisassemble(ctx, req)
	default:
		s.logger.Debug("dapadapter: unhandled request", zap.String("type", fmt.Sprintf("%T", request)))
	}
}

func (s *Session) onInitialize(req *dap.InitializeRequest) {
	resp := &dap.InitializeResponse{Response: newResponse(req.Seq, req.Command)}
	resp.Body.SupportsConfigurationDoneRequest = true
	resp.Body.SupportsFunctionBreakpoints = true
	resp.Body.SupportsConditionalBreakpoints = true
	resp.Body.SupportsEvaluateForHovers = true
	resp.Body.SupportsSetVariable = true
	resp.Body.SupportsReadMemoryRequest = true
	resp.Body.SupportsWriteMemoryRequest = true
	resp.Body.SupportsDisassembleRequest = true
	resp.Body.SupportsInstructionBreakpoints = true
	resp.Body.SupportsRestartRequest = true
	s.send(resp)
	s.send(&dap.InitializedEvent{Event: newEvent("initialized")})
}

// onLaunch implements spec.md §4.5's Initialize/Launch/Attach sequence.
func (s *Session) onLaunch(ctx context.Context, req *dap.LaunchRequest, attach bool) {
	cfg, err := launchconfig.Parse(req.Arguments, attach)
	if err != nil {
		s.sendErrorResponse(req.Seq, req.Command, err.Error())
		return
	}
	s.cfg = cfg
	s.state = session.New()

	if err := auxiliary.ValidateLaunchConfig(cfg.AuxiliaryGDB, cfg.GDBAsync, cfg.GDBNonStop); err != nil {
		s.sendErrorResponse(req.Seq, req.Command, err.Error())
		return
	}
	if len(cfg.CustomResetCommands) > 0 && !cfg.GDBAsync {
		s.sendErrorResponse(req.Seq, req.Command, adaptererrors.NewCustomResetRequiresAsyncError().Error())
		return
	}

	gdb, err := process.SpawnGDB(ctx, cfg.GDB, nil, launchconfig.EnvPairs(cfg.Environment), s.logger)
	if err != nil {
		s.sendErrorResponse(req.Seq, req.Command, err.Error())
		return
	}
	if err := gdb.AwaitBanner(ctx, gdb.Records(), 10*time.Second); err != nil {
		s.sendErrorResponse(req.Seq, req.Command, err.Error())
		return
	}
	s.gdb = gdb
	s.router = router.New(gdb, s.logger)
	s.vars = NewVarobjEngine(s.state, s.router)
	go s.pumpGDBEvents(gdb)

	if cfg.GDBAsync {
		if _, err := s.router.Submit(ctx, "-gdb-set mi-async on"); err != nil {
			s.sendErrorResponse(req.Seq, req.Command, err.Error())
			return
		}
	}
	if cfg.GDBNonStop {
		if _, err := s.router.Submit(ctx, "-gdb-set non-stop on"); err != nil {
			s.sendErrorResponse(req.Seq, req.Command, err.Error())
			return
		}
	}

	if cfg.Program != "" {
		if _, err := s.router.Submit(ctx, fmt.Sprintf("-file-exec-and-symbols %s", quoteMIExpr(cfg.Program))); err != nil {
			s.sendErrorResponse(req.Seq, req.Command, err.Error())
			return
		}
	}
	if len(cfg.Arguments) > 0 {
		s.router.Submit(ctx, "-exec-arguments "+strings.Join(cfg.Arguments, " "))
	}

	if attach && cfg.AttachPID > 0 {
		s.router.Submit(ctx, fmt.Sprintf("-target-attach %d", cfg.AttachPID))
	}

	var connectCommands []string
	if cfg.IsRemote() {
		cmds, err := s.connectRemote(ctx, cfg)
		if err != nil {
			s.sendErrorResponse(req.Seq, req.Command, err.Error())
			return
		}
		connectCommands = cmds
	}

	if cfg.AuxiliaryGDB {
		s.launchAuxiliary(ctx, cfg, connectCommands)
	}

	s.coord = queue.New(s.router, s.auxRouter(), queue.Config{
		Async:           cfg.GDBAsync,
		NonStop:         cfg.GDBNonStop,
		SteppingTimeout: time.Duration(cfg.SteppingTimeoutMillis()) * time.Millisecond,
		Interrupt: func(ctx context.Context) error {
			s.markTransientStop()
			return gdb.SendCommand("-exec-interrupt")
		},
		AwaitStop:       s.awaitStop,
	}, s.logger)

	for _, batch := range [][]string{cfg.PreConnectCommands, cfg.InitCommands, cfg.PreRunCommands} {
		for _, cmd := range batch {
			s.router.Submit(ctx, cmd)
		}
	}

	resp := &dap.LaunchResponse{Response: newResponse(req.Seq, req.Command)}
	s.send(resp)
}

// auxRouter returns s.aux typed as queue.AuxiliaryRouter, or nil if no
// auxiliary connection was configured — a literal nil *Connection would
// compare non-nil as an interface, so this must branch explicitly.
func (s *Session) auxRouter() queue.AuxiliaryRouter {
	if s.aux == nil {
		return nil
	}
	return s.aux
}

func (s *Session) launchAuxiliary(ctx context.Context, cfg launchconfig.Config, connectCommands []string) {
	aux, err := auxiliary.Launch(ctx, auxiliary.Config{
		GDBPath:         cfg.GDB,
		Env:             launchconfig.EnvPairs(cfg.Environment),
		ConnectCommands: connectCommands,
	}, s.logger)
	if err != nil {
		s.logger.Warn("dapadapter: auxiliary gdb failed to start, continuing without it", zap.Error(err))
		return
	}
	s.aux = aux
}

// connectRemote performs the remote target-select/attach sequence and
// returns the MI commands used, so launchAuxiliary can replay the same
// sequence against the second GDB instance (spec.md §4.7).
func (s *Session) connectRemote(ctx context.Context, cfg launchconfig.Config) ([]string, error) {
	if len(cfg.Target.ConnectCommands) > 0 {
		for _, cmd := range cfg.Target.ConnectCommands {
			if _, err := s.router.Submit(ctx, cmd); err != nil {
				return nil, err
			}
		}
		return cfg.Target.ConnectCommands, nil
	}

	host, port := cfg.Target.Host, cfg.Target.Port
	if cfg.Target.Server != "" {
		args := cfg.Target.ServerParameters
		if len(args) == 0 {
			args = append([]string{}, targetserver.DefaultArgs...)
			if cfg.Program != "" {
				args = append(args, cfg.Program)
			}
		}
		srvCfg := targetserver.Config{
			Program:      cfg.Target.Server,
			Args:         args,
			Env:          launchconfig.EnvPairs(cfg.Target.Environment),
			Dir:          cfg.Target.Cwd,
			ReadyPattern: cfg.Target.ServerPortRegExp,
		}
		if cfg.Target.ServerStartupDelay > 0 {
			srvCfg.PostMatchDelay = time.Duration(cfg.Target.ServerStartupDelay) * time.Millisecond
		}
		srv, err := targetserver.Launch(ctx, srvCfg, s.logger)
		if err != nil {
			return nil, err
		}
		s.targetSrv = srv
		go s.pumpTargetServerEvents(srv)
		host, port = "localhost", srv.Port
	}
	if host == "" {
		host = "localhost"
	}
	cmd := fmt.Sprintf("-target-select remote %s:%d", host, port)
	if _, err := s.router.Submit(ctx, cmd); err != nil {
		return nil, err
	}
	return []string{cmd}, nil
}

func (s *Session) pumpGDBEvents(gdb *process.GDB) {
	for rec := range gdb.Records() {
		switch rec.Kind {
		case mi.RecordResult:
			s.router.Resolve(*rec.Result)
		case mi.RecordAsync:
			s.handleAsync(rec.Async)
		case mi.RecordStream:
			s.handleStream(rec.Stream)
		}
	}
	if s.router != nil {
		s.router.FailAll("gdb exited")
	}
	// Cross-terminate the target server (spec.md §4.2): GDB exiting on its
	// own, not just an explicit disconnect, means the remote session is
	// over and the server it was attached to has no further purpose.
	if s.targetSrv != nil {
		s.targetSrv.Kill(fmt.Errorf("gdb exited"))
	}
	s.send(&dap.TerminatedEvent{Event: newEvent("terminated")})
}

// pumpTargetServerEvents forwards the target server's stdout/stderr as
// output{category=server} events (spec.md §4.2, §12.3) and cross-
// terminates GDB if the server dies unexpectedly — pumpGDBEvents then
// observes GDB's own exit and emits the terminated event, so this loop
// does not emit one itself.
func (s *Session) pumpTargetServerEvents(srv *targetserver.Server) {
	for ev := range srv.Events() {
		switch ev.Kind {
		case process.EventStdout, process.EventStderr:
			s.outputEvent("server", ev.Line)
		case process.EventExit:
			if s.gdb != nil {
				s.gdb.Kill(fmt.Errorf("target server exited"))
			}
		}
	}
}

func (s *Session) handleStream(rec *mi.StreamRecord) {
	category := "console"
	switch rec.Channel {
	case mi.StreamTarget:
		category = "stdout"
	case mi.StreamLog:
		category = "log"
	}
	s.outputEvent(category, rec.Text)
}

func (s *Session) handleAsync(rec *mi.AsyncRecord) {
	switch rec.Class {
	case "running":
		if s.coord != nil {
			s.coord.SetRunning(true)
		}
		threadID, _ := rec.Attrs.GetString("thread-id")
		tid, _ := strconv.Atoi(threadID)
		s.send(&dap.ContinuedEvent{Event: newEvent("continued"), Body: dap.ContinuedEventBody{ThreadId: tid, AllThreadsContinued: threadID == "all" || threadID == ""}})
	case "stopped":
		s.onStopped(rec)
	case "thread-created":
		s.threadLifecycle(rec, "started")
	case "thread-exited":
		s.threadLifecycle(rec, "exited")
	}
}

func (s *Session) threadLifecycle(rec *mi.AsyncRecord, reason string) {
	idStr, _ := rec.Attrs.GetString("id")
	id, _ := strconv.Atoi(idStr)
	if reason == "started" {
		s.state.UpsertThread(uint32(id), "")
	} else {
		s.state.RemoveThread(uint32(id))
	}
	s.send(&dap.ThreadEvent{Event: newEvent("thread"), Body: dap.ThreadEventBody{Reason: reason, ThreadId: id}})
}

func (s *Session) onStopped(rec *mi.AsyncRecord) {
	if s.coord != nil {
		s.coord.SetRunning(false)
	}
	s.signalStop()
	s.state.ResetFrames()
	s.state.ResetVarHandles()

	reasonStr, _ := rec.Attrs.GetString("reason")
	signalName, _ := rec.Attrs.GetString("signal-name")
	threadIDStr, _ := rec.Attrs.GetString("thread-id")
	threadID, _ := strconv.Atoi(threadIDStr)
	s.state.SetThreadState(uint32(threadID), session.ThreadStopped, reasonStr)

	translated := TranslateStopReason(reasonStr, signalName)
	if translated.Terminated {
		s.send(&dap.TerminatedEvent{Event: newEvent("terminated")})
		return
	}
	// A stop the coordinator itself induced via pause-if-needed's
	// -exec-interrupt (spec.md §4.4 step 2, §5) must never reach the
	// front-end as a stopped event — only awaitStop, unblocked by
	// signalStop above, is waiting on it.
	if s.consumeTransientStop() {
		return
	}
	allStopped := !s.cfg.GDBNonStop
	s.send(&dap.StoppedEvent{
		Event: newEvent("stopped"),
		Body: dap.StoppedEventBody{
			Reason:            translated.Reason,
			Text:              translated.Text,
			ThreadId:          threadID,
			AllThreadsStopped: allStopped,
		},
	})
}

func (s *Session) onDisconnect(req *dap.DisconnectRequest) {
	s.disconnected = true
	if s.aux != nil {
		s.aux.Close()
	}
	if s.targetSrv != nil {
		s.targetSrv.Kill(nil)
	}
	if s.gdb != nil {
		s.gdb.Kill(nil)
	}
	resp := &dap.DisconnectResponse{Response: newResponse(req.Seq, req.Command)}
	s.send(resp)
}

func (s *Session) execute(ctx context.Context, verb, text string, needsStopped, auxEligible bool) (mi.ResultRecord, error) {
	class := queue.Classify(verb, needsStopped, auxEligible)
	return s.coord.Execute(ctx, verb, text, class)
}

func (s *Session) onPause(ctx context.Context, req *dap.PauseRequest) {
	err := s.gdb.SendCommand("-exec-interrupt")
	resp := &dap.PauseResponse{Response: newResponse(req.Seq, req.Command)}
	if err != nil {
		resp.Success = false
		resp.Message = err.Error()
	}
	s.send(resp)
}

func (s *Session) onResume(ctx context.Context, req dap.Request, verb string) {
	_, err := s.execute(ctx, verb, verb, false, false)
	resp := &dap.ContinueResponse{Response: newResponse(req.Seq, req.Command)}
	if err != nil {
		s.sendErrorResponse(req.Seq, req.Command, err.Error())
		return
	}
	resp.Body.AllThreadsContinued = !s.cfg.GDBNonStop
	s.send(resp)
}

// onStepping implements the §4.4 timeout wrapper: whichever of the MI
// command's own completion or the response timer fires first resolves
// the DAP response; a late MI error is surfaced as output only.
func (s *Session) onStepping(ctx context.Context, req dap.Request, verb string) {
	result := s.coord.ExecuteStepping(ctx, verb)
	if !result.TimedOut {
		s.sendSteppingResponse(req, result.Err)
		go func() {
			if result.Err != nil {
				s.outputEvent("console", fmt.Sprintf("Error occurred during the %sRequest: %v", req.Command, result.Err))
			}
		}()
		return
	}
	s.sendSteppingResponse(req, nil)
	go func() {
		if err := <-result.LateErrCh; err != nil {
			late := &adaptererrors.StepTimeoutLate{Request: req.Command, Cause: err}
			s.outputEvent("console", late.Error())
		}
	}()
}

func (s *Session) sendSteppingResponse(req dap.Request, err error) {
	switch req.Command {
	case "next":
		resp := &dap.NextResponse{Response: newResponse(req.Seq, req.Command)}
		if err != nil {
			resp.Success = false
			resp.Message = err.Error()
		}
		s.send(resp)
	case "stepIn":
		resp := &dap.StepInResponse{Response: newResponse(req.Seq, req.Command)}
		if err != nil {
			resp.Success = false
			resp.Message = err.Error()
		}
		s.send(resp)
	case "stepOut":
		resp := &dap.StepOutResponse{Response: newResponse(req.Seq, req.Command)}
		if err != nil {
			resp.Success = false
			resp.Message = err.Error()
		}
		s.send(resp)
	}
}

func (s *Session) onThreads(ctx context.Context, req *dap.ThreadsRequest) {
	res, err := s.execute(ctx, "-thread-info", "-thread-info", true, false)
	resp := &dap.ThreadsResponse{Response: newResponse(req.Seq, req.Command)}
	if err != nil {
		s.sendErrorResponse(req.Seq, req.Command, err.Error())
		return
	}
	threadsVal, _ := res.Attrs.Get("threads")
	for _, t := range threadsVal.Items() {
		idStr, _ := t.GetString("id")
		id, _ := strconv.Atoi(idStr)
		name, _ := t.GetString("name")
		if name == "" {
			name = fmt.Sprintf("Thread %d", id)
		}
		resp.Body.Threads = append(resp.Body.Threads, dap.Thread{Id: id, Name: name})
		s.state.UpsertThread(uint32(id), name)
	}
	s.send(resp)
}

func (s *Session) onStackTrace(ctx context.Context, req *dap.StackTraceRequest) {
	cmd := fmt.Sprintf("-stack-list-frames --thread %d", req.Arguments.ThreadId)
	res, err := s.execute(ctx, "-stack-list-frames", cmd, true, false)
	resp := &dap.StackTraceResponse{Response: newResponse(req.Seq, req.Command)}
	if err != nil {
		s.sendErrorResponse(req.Seq, req.Command, err.Error())
		return
	}
	framesVal, _ := res.Attrs.Get("stack")
	items := framesVal.Items()
	depth := len(items)
	for _, f := range items {
		levelStr, _ := f.GetString("level")
		level, _ := strconv.Atoi(levelStr)
		fn, _ := f.GetString("func")
		file, _ := f.GetString("file")
		fullname, _ := f.GetString("fullname")
		lineStr, _ := f.GetString("line")
		line, _ := strconv.Atoi(lineStr)

		handle := s.state.AllocFrameHandle(session.Frame{
			ThreadID:   uint32(req.Arguments.ThreadId),
			Level:      level,
			StackDepth: depth,
		})
		var src *dap.Source
		if file != "" {
			src = &dap.Source{Name: file, Path: fullname}
		}
		resp.Body.StackFrames = append(resp.Body.StackFrames, dap.StackFrame{
			Id:     int(handle),
			Name:   fn,
			Source: src,
			Line:   line,
		})
	}
	resp.Body.TotalFrames = depth
	s.send(resp)
}

func (s *Session) onScopes(req *dap.ScopesRequest) {
	resp := &dap.ScopesResponse{Response: newResponse(req.Seq, req.Command)}
	frame, ok := s.state.LookupFrame(session.FrameHandle(req.Arguments.FrameId))
	if !ok {
		s.send(resp)
		return
	}
	varsRef := s.state.AllocVarHandle(session.VarobjKey{ThreadID: frame.ThreadID, FrameLevel: frame.Level, StackDepth: frame.StackDepth, Expr: ""})
	resp.Body.Scopes = []dap.Scope{{Name: "Locals", VariablesReference: int(varsRef)}}
	s.send(resp)
}

func (s *Session) onVariables(ctx context.Context, req *dap.VariablesRequest) {
	resp := &dap.VariablesResponse{Response: newResponse(req.Seq, req.Command)}
	key, ok := s.state.LookupVarHandle(uint64(req.Arguments.VariablesReference))
	if !ok {
		s.send(resp)
		return
	}
	if key.Expr == "" {
		s.listLocals(ctx, req, key, resp)
	} else {
		s.listChildren(ctx, key, resp)
	}
	s.send(resp)
}

func (s *Session) listLocals(ctx context.Context, req *dap.VariablesRequest, key session.VarobjKey, resp *dap.VariablesResponse) {
	cmd := fmt.Sprintf("-stack-list-variables --thread %d --frame %d --simple-values", key.ThreadID, key.FrameLevel)
	res, err := s.execute(ctx, "-stack-list-variables", cmd, true, true)
	if err != nil {
		return
	}
	varsVal, _ := res.Attrs.Get("variables")
	for _, row := range varsVal.Items() {
		name, _ := row.GetString("name")
		childKey := key
		childKey.Expr = name
		v, err := s.vars.Evaluate(ctx, childKey, key.StackDepth, true)
		if err != nil {
			continue
		}
		ref := 0
		if v.NumChild > 0 {
			ref = int(s.state.AllocVarHandle(childKey))
		}
		resp.Body.Variables = append(resp.Body.Variables, dap.Variable{
			Name: name, Value: v.Value, Type: v.Type, VariablesReference: ref, EvaluateName: name,
		})
	}
}

func (s *Session) listChildren(ctx context.Context, key session.VarobjKey, resp *dap.VariablesResponse) {
	v, ok := s.state.LookupVarobj(key, key.StackDepth, true)
	if !ok {
		return
	}
	children, err := s.vars.ListChildren(ctx, v.Name)
	if err != nil {
		return
	}
	for _, c := range children {
		ref := 0
		if c.NumChild > 0 {
			childKey := session.VarobjKey{ThreadID: key.ThreadID, FrameLevel: key.FrameLevel, StackDepth: key.StackDepth, Expr: c.Name}
			ref = int(s.state.AllocVarHandle(childKey))
		}
		resp.Body.Variables = append(resp.Body.Variables, dap.Variable{
			Name: c.Expression, Type: c.Type, VariablesReference: ref, EvaluateName: c.EvaluateName(v.Expression),
		})
	}
}

func (s *Session) onSetVariable(ctx context.Context, req *dap.SetVariableRequest) {
	resp := &dap.SetVariableResponse{Response: newResponse(req.Seq, req.Command)}
	key, ok := s.state.LookupVarHandle(uint64(req.Arguments.VariablesReference))
	if !ok {
		s.sendErrorResponse(req.Seq, req.Command, "unknown variables reference")
		return
	}
	childKey := key
	childKey.Expr = req.Arguments.Name
	v, err := s.vars.Evaluate(ctx, childKey, key.StackDepth, true)
	if err != nil {
		s.sendErrorResponse(req.Seq, req.Command, err.Error())
		return
	}
	cmd := fmt.Sprintf("-var-assign %s %s", v.Name, quoteMIExpr(req.Arguments.Value))
	res, err := s.execute(ctx, "-var-assign", cmd, true, true)
	if err != nil || res.Class == mi.ResultError {
		s.sendErrorResponse(req.Seq, req.Command, assignErrorMessage(res, err))
		return
	}
	newVal, _ := res.Attrs.GetString("value")
	resp.Body.Value = newVal
	s.send(resp)
}

func assignErrorMessage(res mi.ResultRecord, err error) string {
	if err != nil {
		return err.Error()
	}
	return res.ErrorMessage
}

func (s *Session) onEvaluate(ctx context.Context, req *dap.EvaluateRequest) {
	resp := &dap.EvaluateResponse{Response: newResponse(req.Seq, req.Command)}
	frame, _ := s.state.LookupFrame(session.FrameHandle(req.Arguments.FrameId))
	key := session.VarobjKey{ThreadID: frame.ThreadID, FrameLevel: frame.Level, StackDepth: frame.StackDepth, Expr: req.Arguments.Expression}
	v, err := s.vars.Evaluate(ctx, key, frame.StackDepth, true)
	if err != nil {
		s.sendErrorResponse(req.Seq, req.Command, err.Error())
		return
	}
	resp.Body.Result = v.Value
	resp.Body.Type = v.Type
	if v.NumChild > 0 {
		resp.Body.VariablesReference = int(s.state.AllocVarHandle(key))
	}
	s.send(resp)
}

func (s *Session) onSetBreakpoints(ctx context.Context, req *dap.SetBreakpointsRequest) {
	resp := &dap.SetBreakpointsResponse{Response: newResponse(req.Seq, req.Command)}
	source := req.Arguments.Source.Path

	requested := make([]RequestedBreakpoint, len(req.Arguments.Breakpoints))
	for i, b := range req.Arguments.Breakpoints {
		requested[i] = RequestedBreakpoint{Line: b.Line, Condition: b.Condition, HitCondition: b.HitCondition, LogMessage: b.LogMessage, Hardware: s.cfg.HardwareBreakpoint}
	}

	existingBPs := s.state.BreakpointsForSource(source)
	existing := make([]Existing, len(existingBPs))
	for i, bp := range existingBPs {
		existing[i] = Existing{ClientID: bp.ClientID, GDBNumber: bp.GDBNumber, Line: bp.LastLine}
	}

	diff := Reconcile(requested, existing)

	for _, ex := range diff.ToDelete {
		s.execute(ctx, "-break-delete", fmt.Sprintf("-break-delete %s", ex.GDBNumber), true, false)
		s.state.DeleteBreakpoint(source, ex.ClientID)
	}

	out := make([]dap.Breakpoint, len(requested))
	for reqIdx := range requested {
		if ex, ok := diff.Survivors[reqIdx]; ok {
			out[reqIdx] = dap.Breakpoint{Id: ex.ClientID, Verified: true, Line: ex.Line, Source: &req.Arguments.Source}
			continue
		}
		out[reqIdx] = s.insertBreakpoint(ctx, source, requested[reqIdx])
	}
	resp.Body.Breakpoints = out
	s.send(resp)
}

func (s *Session) insertBreakpoint(ctx context.Context, source string, req RequestedBreakpoint) dap.Breakpoint {
	cmd := fmt.Sprintf("-break-insert %s%s:%d", breakFlags(req), source, req.Line)
	bp, err := s.runBreakInsert(ctx, cmd, session.BreakpointSource, req)
	if err != nil {
		return *err
	}
	s.state.UpsertBreakpoint(source, bp)
	return dap.Breakpoint{Id: bp.ClientID, Verified: true, Line: bp.LastLine}
}

// functionBreakpointSource and instructionBreakpointSource are synthetic
// source keys used to keep function and instruction breakpoints in their
// own ordered table via the same source-keyed bookkeeping session.State
// already provides for source breakpoints — they can never collide with a
// real filesystem path since NUL is not a legal path byte.
const (
	functionBreakpointSource    = "\x00function"
	instructionBreakpointSource = "\x00instruction"
)

func breakFlags(req RequestedBreakpoint) string {
	flags := ""
	if req.Hardware {
		flags = "-h "
	}
	if req.Condition != "" {
		flags += fmt.Sprintf("-c %s ", quoteMIExpr(req.Condition))
	}
	return flags
}

// runBreakInsert issues `-break-insert` and parses its response, handling
// GDB's `<MULTIPLE>` addr convention for function breakpoints with
// several overloads/inlined instances: the multiple sub-locations are
// never reported as separate client ids, only the parent breakpoint
// number (spec.md §4.5 "function-breakpoints / instruction-breakpoints").
func (s *Session) runBreakInsert(ctx context.Context, cmd string, kind session.BreakpointKind, req RequestedBreakpoint) (*session.Breakpoint, *dap.Breakpoint) {
	res, err := s.execute(ctx, "-break-insert", cmd, true, false)
	if err != nil || res.Class == mi.ResultError {
		return nil, &dap.Breakpoint{Verified: false, Message: assignErrorMessage(res, err)}
	}
	bkpt, _ := res.Attrs.Get("bkpt")
	number, _ := bkpt.GetString("number")
	lineStr, _ := bkpt.GetString("line")
	line, _ := strconv.Atoi(lineStr)
	if line == 0 {
		line = req.Line
	}
	// <MULTIPLE> locations nest under the same "number"; GDB's own table
	// already collapses them under one parent, so no further flattening
	// of the MI response is needed beyond using the parent's number.
	clientID := s.state.NextBreakpointClientID()
	return &session.Breakpoint{
		ClientID: clientID, GDBNumber: number, Kind: kind,
		Location: req.FunctionName + req.InstructionRef,
		LastLine: line, Verified: true,
	}, nil
}

func (s *Session) onSetFunctionBreakpoints(ctx context.Context, req *dap.SetFunctionBreakpointsRequest) {
	resp := &dap.SetFunctionBreakpointsResponse{Response: newResponse(req.Seq, req.Command)}

	requested := make([]RequestedBreakpoint, len(req.Arguments.Breakpoints))
	for i, b := range req.Arguments.Breakpoints {
		requested[i] = RequestedBreakpoint{FunctionName: b.Name, Condition: b.Condition, HitCondition: b.HitCondition, Hardware: s.cfg.HardwareBreakpoint}
	}

	existingBPs := s.state.BreakpointsForSource(functionBreakpointSource)
	existing := make([]Existing, len(existingBPs))
	for i, bp := range existingBPs {
		existing[i] = Existing{ClientID: bp.ClientID, GDBNumber: bp.GDBNumber, FunctionName: bp.Location}
	}

	diff := Reconcile(requested, existing)
	for _, ex := range diff.ToDelete {
		s.execute(ctx, "-break-delete", fmt.Sprintf("-break-delete %s", ex.GDBNumber), true, false)
		s.state.DeleteBreakpoint(functionBreakpointSource, ex.ClientID)
	}

	out := make([]dap.Breakpoint, len(requested))
	for reqIdx, r := range requested {
		if ex, ok := diff.Survivors[reqIdx]; ok {
			out[reqIdx] = dap.Breakpoint{Id: ex.ClientID, Verified: true}
			continue
		}
		cmd := fmt.Sprintf("-break-insert %s-f %s", breakFlags(r), quoteMIExpr(r.FunctionName))
		bp, errBp := s.runBreakInsert(ctx, cmd, session.BreakpointFunction, r)
		if errBp != nil {
			out[reqIdx] = *errBp
			continue
		}
		s.state.UpsertBreakpoint(functionBreakpointSource, bp)
		out[reqIdx] = dap.Breakpoint{Id: bp.ClientID, Verified: true}
	}
	resp.Body.Breakpoints = out
	s.send(resp)
}

func (s *Session) onSetInstructionBreakpoints(ctx context.Context, req *dap.SetInstructionBreakpointsRequest) {
	resp := &dap.SetInstructionBreakpointsResponse{Response: newResponse(req.Seq, req.Command)}

	requested := make([]RequestedBreakpoint, len(req.Arguments.Breakpoints))
	for i, b := range req.Arguments.Breakpoints {
		requested[i] = RequestedBreakpoint{InstructionRef: b.InstructionReference, Condition: b.Condition, HitCondition: b.HitCondition, Hardware: s.cfg.HardwareBreakpoint}
	}

	existingBPs := s.state.BreakpointsForSource(instructionBreakpointSource)
	existing := make([]Existing, len(existingBPs))
	for i, bp := range existingBPs {
		existing[i] = Existing{ClientID: bp.ClientID, GDBNumber: bp.GDBNumber, InstructionRef: bp.Location}
	}

	diff := Reconcile(requested, existing)
	for _, ex := range diff.ToDelete {
		s.execute(ctx, "-break-delete", fmt.Sprintf("-break-delete %s", ex.GDBNumber), true, false)
		s.state.DeleteBreakpoint(instructionBreakpointSource, ex.ClientID)
	}

	out := make([]dap.Breakpoint, len(requested))
	for reqIdx, r := range requested {
		if ex, ok := diff.Survivors[reqIdx]; ok {
			out[reqIdx] = dap.Breakpoint{Id: ex.ClientID, Verified: true}
			continue
		}
		cmd := fmt.Sprintf("-break-insert %s*%s", breakFlags(r), r.InstructionRef)
		bp, errBp := s.runBreakInsert(ctx, cmd, session.BreakpointInstruction, r)
		if errBp != nil {
			out[reqIdx] = *errBp
			continue
		}
		s.state.UpsertBreakpoint(instructionBreakpointSource, bp)
		out[reqIdx] = dap.Breakpoint{Id: bp.ClientID, Verified: true}
	}
	resp.Body.Breakpoints = out
	s.send(resp)
}

// onRestart implements spec.md §4.5's optional "customReset": if the
// launch configuration supplied customResetCommands, run them, wrapping
// the run in pause-if-needed when the target is currently running so the
// commands execute against a stopped target and the session resumes
// afterward. DAP's RestartRequest is the closest standard-protocol
// trigger for this semantics, since there is no dedicated customReset
// request in the front-end protocol.
func (s *Session) onRestart(ctx context.Context, req *dap.RestartRequest) {
	resp := &dap.RestartResponse{Response: newResponse(req.Seq, req.Command)}
	if len(s.cfg.CustomResetCommands) == 0 {
		s.sendErrorResponse(req.Seq, req.Command, "no customResetCommands configured")
		return
	}
	for _, cmd := range s.cfg.CustomResetCommands {
		if _, err := s.execute(ctx, cmd, cmd, true, false); err != nil {
			s.sendErrorResponse(req.Seq, req.Command, err.Error())
			return
		}
	}
	s.send(resp)
}

func (s *Session) onReadMemory(ctx context.Context, req *dap.ReadMemoryRequest) {
	resp := &dap.ReadMemoryResponse{Response: newResponse(req.Seq, req.Command)}
	cmd := fmt.Sprintf("-data-read-memory-bytes %s %d", req.Arguments.MemoryReference, req.Arguments.Count)
	res, err := s.execute(ctx, "-data-read-memory-bytes", cmd, true, true)
	if err != nil || res.Class == mi.ResultError {
		s.sendErrorResponse(req.Seq, req.Command, assignErrorMessage(res, err))
		return
	}
	memoryVal, _ := res.Attrs.Get("memory")
	items := memoryVal.Items()
	if len(items) == 0 {
		s.send(resp)
		return
	}
	begin, _ := items[0].GetString("begin")
	contents, _ := items[0].GetString("contents")
	data, decErr := hexToBase64(contents)
	if decErr == nil {
		resp.Body.Address = begin
		resp.Body.Data = data
	}
	s.send(resp)
}

func hexToBase64(hexStr string) (string, error) {
	raw, err := decodeHex(hexStr)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

func decodeHex(s string) ([]byte, error) {
	if len(s)%2 != 0 {
		return nil, fmt.Errorf("odd-length hex string")
	}
	out := make([]byte, len(s)/2)
	for i := 0; i < len(out); i++ {
		var b byte
		if _, err := fmt.Sscanf(s[i*2:i*2+2], "%02x", &b); err != nil {
			return nil, err
		}
		out[i] = b
	}
	return out, nil
}

func (s *Session) onWriteMemory(ctx context.Context, req *dap.WriteMemoryRequest) {
	resp := &dap.WriteMemoryResponse{Response: newResponse(req.Seq, req.Command)}
	raw, err := base64.StdEncoding.DecodeString(req.Arguments.Data)
	if err != nil {
		s.sendErrorResponse(req.Seq, req.Command, err.Error())
		return
	}
	hexStr := fmt.Sprintf("%x", raw)
	cmd := fmt.Sprintf("-data-write-memory-bytes %s %s", req.Arguments.MemoryReference, hexStr)
	res, err := s.execute(ctx, "-data-write-memory-bytes", cmd, true, true)
	if err != nil || res.Class == mi.ResultError {
		s.sendErrorResponse(req.Seq, req.Command, assignErrorMessage(res, err))
		return
	}
	resp.Body.BytesWritten = len(raw)
	s.send(resp)
}

// resolveMemoryReference turns a DAP memory reference (an expression GDB
// understands, possibly a bare hex address) plus a byte offset into a
// numeric address via -data-evaluate-expression, since DisassembleRange
// needs to do arithmetic on the base address itself.
func (s *Session) resolveMemoryReference(ctx context.Context, ref string, byteOffset int) (uint64, error) {
	expr := fmt.Sprintf("(%s) + (%d)", ref, byteOffset)
	cmd := fmt.Sprintf("-data-evaluate-expression %s", quoteMIExpr(expr))
	res, err := s.execute(ctx, "-data-evaluate-expression", cmd, true, true)
	if err != nil {
		return 0, err
	}
	if res.Class == mi.ResultError {
		return 0, fmt.Errorf("%s", assignErrorMessage(res, nil))
	}
	val, _ := res.Attrs.GetString("value")
	val = strings.TrimSpace(strings.SplitN(val, " ", 2)[0])
	return strconv.ParseUint(strings.TrimPrefix(val, "0x"), 16, 64)
}

func (s *Session) onDisassemble(ctx context.Context, req *dap.DisassembleRequest) {
	resp := &dap.DisassembleResponse{Response: newResponse(req.Seq, req.Command)}

	base, err := s.resolveMemoryReference(ctx, req.Arguments.MemoryReference, req.Arguments.Offset)
	if err != nil {
		s.sendErrorResponse(req.Seq, req.Command, err.Error())
		return
	}

	start, end, headInvalid := DisassembleRange(base, req.Arguments.InstructionOffset, req.Arguments.InstructionCount, DefaultMeanInstructionSize)

	cmd := fmt.Sprintf("-data-disassemble -s 0x%x -e 0x%x -- 0", start, end)
	res, err := s.execute(ctx, "-data-disassemble", cmd, true, true)
	if err != nil || res.Class == mi.ResultError {
		s.sendErrorResponse(req.Seq, req.Command, assignErrorMessage(res, err))
		return
	}
	asmVal, _ := res.Attrs.Get("asm_insns")
	var insns []Instruction
	for _, row := range asmVal.Items() {
		addrStr, _ := row.GetString("address")
		text, _ := row.GetString("inst")
		addr, _ := strconv.ParseUint(strings.TrimPrefix(addrStr, "0x"), 16, 64)
		insns = append(insns, Instruction{Address: addr, Text: text})
	}

	firstRealAddr := start
	if len(insns) > 0 {
		firstRealAddr = insns[0].Address
	}
	withHead := PrependInvalid(insns, headInvalid, firstRealAddr)

	lastAddr := end
	if len(withHead) > 0 {
		lastAddr = withHead[len(withHead)-1].Address
	}
	padded := PadInstructions(withHead, req.Arguments.InstructionCount, lastAddr)

	for _, i := range padded {
		hint := ""
		if i.Invalid {
			hint = "invalid"
		}
		resp.Body.Instructions = append(resp.Body.Instructions, dap.DisassembledInstruction{
			Address:          fmt.Sprintf("0x%x", i.Address),
			Instruction:      i.Text,
			PresentationHint: hint,
		})
	}
	s.send(resp)
}

package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cwmpsim/cwmpsim-go/pkg/cwmp"
	"github.com/cwmpsim/cwmpsim-go/pkg/duration"
	"github.com/cwmpsim/cwmpsim-go/pkg/log"
	"github.com/cwmpsim/cwmpsim-go/pkg/methods"
	"github.com/cwmpsim/cwmpsim-go/pkg/params"
)

// periodicKey is the timer key of the periodic inform.
const periodicKey = "periodic"

// Runner is the diagnostics scheduler's run pass.
type Runner interface {
	Run()
}

// Engine is the session state machine of one device.
type Engine struct {
	config     Config
	tx         *params.Tx
	dispatcher *methods.Dispatcher
	transport  Transport
	scheduler  Runner
	timers     *duration.Manager
	protocol   log.Logger
	connReq    *ConnectionRequestServer
	errs       chan error

	mu             sync.Mutex
	state          State
	started        bool
	stopped        bool
	pendingRequest bool
	closing        bool
	pendingEvents  []string
	messages       []methods.PendingMessage
	actions        []func()
	handlers       []EventHandler
	sessionID      string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewEngine creates an engine. A nil transport posts to cfg.ACSURL over
// HTTP with the model's ManagementServer credentials. scheduler may be nil.
func NewEngine(cfg Config, tx *params.Tx, dispatcher *methods.Dispatcher, transport Transport, scheduler Runner) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if tx == nil || dispatcher == nil {
		return nil, fmt.Errorf("%w: store and dispatcher are required", ErrInvalidConfig)
	}
	if transport == nil {
		t, err := NewHTTPTransport(cfg.ACSURL, cfg.HTTPTimeout, StoreCredentials(tx))
		if err != nil {
			return nil, err
		}
		transport = t
	}
	if cfg.ErrorBuffer <= 0 {
		cfg.ErrorBuffer = DefaultErrorBuffer
	}

	return &Engine{
		config:     cfg,
		tx:         tx,
		dispatcher: dispatcher,
		transport:  transport,
		scheduler:  scheduler,
		timers:     duration.NewManager(),
		protocol:   log.OrNoop(cfg.ProtocolLogger),
		errs:       make(chan error, cfg.ErrorBuffer),
	}, nil
}

// State returns the current session state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Errors returns the channel transport failures and unsupported methods are
// reported on. Errors are dropped when the channel is full.
func (e *Engine) Errors() <-chan error {
	return e.errs
}

// OnEvent registers an event handler. Handlers run on their own goroutine.
func (e *Engine) OnEvent(handler EventHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers = append(e.handlers, handler)
}

// ConnectionRequestURL returns the published connection-request URL.
func (e *Engine) ConnectionRequestURL() string {
	e.mu.Lock()
	srv := e.connReq
	e.mu.Unlock()
	if srv == nil {
		return ""
	}
	return srv.URL()
}

// Start starts the connection-request listener, publishes its URL in the
// model and opens the boot session.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return ErrAlreadyStarted
	}
	e.started = true
	e.ctx, e.cancel = context.WithCancel(ctx)
	e.mu.Unlock()

	if !e.config.DisableConnectionRequests {
		addr := e.config.ConnectionRequestAddr
		if addr == "" {
			addr = ListenAddrFor(e.config.ACSURL)
		}
		srv := NewConnectionRequestServer(addr, e.connectionRequest, e.config.Logger)
		crURL, err := srv.Start()
		if err != nil {
			e.cancel()
			return err
		}
		e.tx.Do(func(s params.Store) {
			if !params.SetValue(s, params.RootTR098+"ManagementServer.ConnectionRequestURL", crURL) {
				params.SetValue(s, params.RootTR181+"ManagementServer.ConnectionRequestURL", crURL)
			}
		})
		e.mu.Lock()
		e.connReq = srv
		e.mu.Unlock()
	}

	events := e.config.BootEvents
	if len(events) == 0 {
		events = []string{cwmp.EventBoot}
	}
	e.mu.Lock()
	for _, ev := range events {
		e.addEventLocked(ev)
	}
	e.mu.Unlock()
	e.trigger("")
	return nil
}

// Stop cancels the periodic timer, closes the listener and waits for the
// open session to end. The Errors channel stays open.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.started || e.stopped {
		e.mu.Unlock()
		return
	}
	e.stopped = true
	e.cancel()
	srv := e.connReq
	e.mu.Unlock()

	e.timers.Close()
	if srv != nil {
		if err := srv.Close(); err != nil {
			e.debugLog("close connection request server", "error", err)
		}
	}
	e.wg.Wait()
}

func (e *Engine) connectionRequest(remote string) {
	e.emit(Event{Type: EventConnectionRequest})
	e.protocol.Log(log.Event{
		Timestamp:   time.Now(),
		Direction:   log.DirectionIn,
		Layer:       log.LayerTransport,
		Category:    log.CategoryState,
		DeviceID:    e.config.DeviceID,
		RemoteAddr:  remote,
		StateChange: &log.StateChangeEvent{Entity: log.StateEntitySession, NewState: "CONNECTION_REQUEST"},
	})
	e.Trigger(cwmp.EventConnectionRequest)
}

// Trigger requests a session reporting event. While a session is open the
// request is remembered and served right after it closes.
func (e *Engine) Trigger(event string) {
	e.trigger(event)
}

// TriggerDefault requests a session with the periodic event code.
func (e *Engine) TriggerDefault() {
	e.trigger(cwmp.EventPeriodic)
}

// DiagnosticComplete requests a session reporting a finished diagnostic.
func (e *Engine) DiagnosticComplete(name string) {
	e.debugLog("diagnostic complete", "diagnostic", name)
	e.trigger(cwmp.EventDiagnosticsComplete)
}

// QueueMessage adds a CPE request to send at the start of the next session.
func (e *Engine) QueueMessage(msg methods.PendingMessage) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.messages = append(e.messages, msg)
}

// QueueAction runs fn once no session is open. With no session open it
// runs immediately.
func (e *Engine) QueueAction(fn func()) {
	e.mu.Lock()
	if e.state == StateClosed && !e.closing && len(e.actions) == 0 {
		e.mu.Unlock()
		fn()
		return
	}
	e.actions = append(e.actions, fn)
	e.mu.Unlock()
}

func (e *Engine) addEventLocked(event string) {
	if event == "" {
		return
	}
	for _, ev := range e.pendingEvents {
		if ev == event {
			return
		}
	}
	e.pendingEvents = append(e.pendingEvents, event)
}

// trigger opens a session with the remembered events. An empty event adds
// nothing to them.
func (e *Engine) trigger(event string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.started || e.stopped {
		e.debugLog("trigger ignored", "event", event, "started", e.started)
		return
	}
	e.addEventLocked(event)

	if e.state != StateClosed || e.closing {
		e.pendingRequest = true
		e.debugLog("session active, request deferred", "event", event)
		return
	}
	e.openLocked()
}

func (e *Engine) openLocked() {
	events := e.pendingEvents
	e.pendingEvents = nil
	if len(events) == 0 {
		events = []string{cwmp.EventPeriodic}
	}

	e.state = StateOpening
	e.sessionID = uuid.NewString()
	_ = e.timers.Cancel(periodicKey)

	e.wg.Add(1)
	go e.run(e.ctx, e.sessionID, events)
}

func (e *Engine) run(ctx context.Context, sid string, events []string) {
	defer e.wg.Done()

	e.debugLog("session opened", "session", sid, "events", events)
	e.logState(sid, StateClosed, StateOpening)
	e.emit(Event{Type: EventSessionOpened, SessionID: sid, Events: events})

	if err := e.exchange(ctx, sid, events); err != nil {
		if ctx.Err() != nil {
			e.debugLog("session aborted", "session", sid, "error", err)
		} else {
			e.report(sid, err)
		}
		if r, ok := e.transport.(resetter); ok {
			r.Reset()
		}
	}
	e.close(sid)
}

func (e *Engine) exchange(ctx context.Context, sid string, events []string) error {
	var inform *cwmp.Inform
	e.tx.Do(func(s params.Store) {
		inform = methods.BuildInform(s, events, time.Now())
	})
	informReply, err := e.send(ctx, sid, cwmp.NewID(), inform)
	if err != nil {
		return err
	}
	if resp, err := cwmp.Decode(informReply); err == nil && resp != nil {
		e.received(sid, resp)
	}
	e.setState(sid, StateExchanging)

	for {
		msg, ok := e.nextMessage()
		if !ok {
			break
		}
		if _, err := e.send(ctx, sid, cwmp.NewID(), msg()); err != nil {
			return err
		}
	}

	reply, err := e.post(ctx, sid, nil)
	if err != nil {
		return err
	}

	for {
		req, err := cwmp.Decode(reply)
		if err != nil {
			return fmt.Errorf("decode ACS request: %w", err)
		}
		if req == nil {
			return nil
		}
		e.received(sid, req)

		if req.Fault != nil {
			e.debugLog("ACS sent a fault", "session", sid, "code", req.Fault.FaultCode, "string", req.Fault.FaultString)
			if reply, err = e.post(ctx, sid, nil); err != nil {
				return err
			}
			continue
		}

		resp := e.dispatch(sid, req, reply)
		if reply, err = e.send(ctx, sid, req.ID, resp); err != nil {
			return err
		}
	}
}

func (e *Engine) dispatch(sid string, req *cwmp.Envelope, payload []byte) cwmp.Message {
	start := time.Now()
	var (
		resp cwmp.Message
		err  error
	)
	e.tx.Do(func(s params.Store) {
		resp, err = e.dispatcher.Dispatch(&methods.Env{
			Store:   s,
			Queue:   e.QueueMessage,
			Trigger: e.Trigger,
		}, req)
	})

	switch {
	case errors.Is(err, methods.ErrMethodNotSupported):
		e.report(sid, &UnsupportedMethodError{Method: req.Method, Payload: payload})
	case err != nil:
		e.debugLog("request answered with fault", "session", sid, "method", req.Method, "error", err)
	}
	e.debugLog("dispatched", "session", sid, "method", req.Method, "took", time.Since(start))
	return resp
}

func (e *Engine) nextMessage() (methods.PendingMessage, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.messages) == 0 {
		return nil, false
	}
	msg := e.messages[0]
	e.messages = e.messages[1:]
	return msg, true
}

// send encodes msg and posts it.
func (e *Engine) send(ctx context.Context, sid, id string, msg cwmp.Message) ([]byte, error) {
	body, err := cwmp.Encode(id, msg)
	if err != nil {
		return nil, err
	}

	var (
		fault  *cwmp.Fault
		events []string
	)
	switch m := msg.(type) {
	case *cwmp.SOAPFault:
		f := m.Detail.Fault
		fault = &f
	case *cwmp.Inform:
		events = m.Event.Codes()
	}
	e.logMessage(sid, log.DirectionOut, id, msg.MethodName(), fault, events)

	ev := Event{Type: EventMessageSent, SessionID: sid, Method: msg.MethodName()}
	if fault != nil {
		ev.FaultCode = fault.FaultCode
	}
	e.emit(ev)

	return e.post(ctx, sid, body)
}

// post sends one body, empty to yield the turn.
func (e *Engine) post(ctx context.Context, sid string, body []byte) ([]byte, error) {
	e.logBody(sid, log.DirectionOut, body, 0)
	if len(body) == 0 {
		e.logMessage(sid, log.DirectionOut, "", "", nil, nil)
		e.emit(Event{Type: EventMessageSent, SessionID: sid})
	}

	reply, err := e.transport.Post(ctx, body)
	if err != nil {
		return nil, err
	}
	e.logBody(sid, log.DirectionIn, reply, 200)
	return reply, nil
}

// received logs and emits one decoded ACS message.
func (e *Engine) received(sid string, env *cwmp.Envelope) {
	e.logMessage(sid, log.DirectionIn, env.ID, env.Method, env.Fault, nil)
	ev := Event{Type: EventMessageReceived, SessionID: sid, Method: env.Method}
	if env.Fault != nil {
		ev.FaultCode = env.Fault.FaultCode
	}
	e.emit(ev)
}

func (e *Engine) setState(sid string, to State) {
	e.mu.Lock()
	from := e.state
	e.state = to
	e.mu.Unlock()
	e.logState(sid, from, to)
}

// close runs the close steps in order: periodic timer, scheduler pass,
// pending actions, then the deferred reopen. Until the last step no new
// session opens; triggers arriving meanwhile are deferred.
func (e *Engine) close(sid string) {
	e.mu.Lock()
	from := e.state
	e.state = StateClosed
	reopen := e.pendingRequest
	e.pendingRequest = false
	stopped := e.stopped
	e.closing = !stopped
	e.mu.Unlock()

	e.logState(sid, from, StateClosed)
	e.emit(Event{Type: EventSessionClosed, SessionID: sid})
	e.debugLog("session closed", "session", sid, "reopen", reopen)

	if stopped {
		return
	}

	if !e.config.PeriodicInformsDisabled && !reopen {
		interval := e.periodicInterval()
		if _, err := e.timers.Schedule(periodicKey, interval, e.TriggerDefault); err != nil {
			e.debugLog("periodic timer not armed", "error", err)
		}
	}

	if e.scheduler != nil {
		e.scheduler.Run()
	}

	for {
		e.mu.Lock()
		if len(e.actions) == 0 {
			e.closing = false
			if e.pendingRequest {
				reopen = true
				e.pendingRequest = false
			}
			if reopen && e.state == StateClosed && !e.stopped {
				e.openLocked()
			}
			e.mu.Unlock()
			return
		}
		action := e.actions[0]
		e.actions = e.actions[1:]
		e.mu.Unlock()
		action()
	}
}

// periodicInterval reads ManagementServer.PeriodicInformInterval.
func (e *Engine) periodicInterval() time.Duration {
	n := 0
	e.tx.Do(func(s params.Store) {
		_, rec, ok := params.First(s,
			params.RootTR181+"ManagementServer.PeriodicInformInterval",
			params.RootTR098+"ManagementServer.PeriodicInformInterval",
		)
		if ok {
			n, _ = strconv.Atoi(rec.Value)
		}
	})
	if n <= 0 {
		return e.config.DefaultPeriodicInterval
	}
	return time.Duration(n) * e.config.IntervalUnit
}

func (e *Engine) report(sid string, err error) {
	e.debugLog("session error", "session", sid, "error", err)

	data := &log.ErrorEventData{Layer: log.LayerTransport, Message: err.Error(), Context: "session"}
	var se *StatusError
	if errors.As(err, &se) {
		code := se.StatusCode
		data.Code = &code
	}
	var ume *UnsupportedMethodError
	if errors.As(err, &ume) {
		code := cwmp.FaultMethodNotSupported
		data.Layer = log.LayerRPC
		data.Code = &code
	}
	e.protocol.Log(log.Event{
		Timestamp: time.Now(),
		SessionID: sid,
		Layer:     data.Layer,
		Category:  log.CategoryError,
		DeviceID:  e.config.DeviceID,
		Error:     data,
	})
	e.emit(Event{Type: EventError, SessionID: sid, Error: err})

	select {
	case e.errs <- err:
	default:
		e.debugLog("error channel full, dropped", "error", err)
	}
}

func (e *Engine) emit(event Event) {
	event.Time = time.Now()
	event.DeviceID = e.config.DeviceID
	e.mu.Lock()
	handlers := append([]EventHandler(nil), e.handlers...)
	e.mu.Unlock()

	for _, handler := range handlers {
		go handler(event)
	}
}

func (e *Engine) logBody(sid string, dir log.Direction, body []byte, status int) {
	e.protocol.Log(log.Event{
		Timestamp:  time.Now(),
		SessionID:  sid,
		Direction:  dir,
		Layer:      log.LayerTransport,
		Category:   log.CategoryMessage,
		DeviceID:   e.config.DeviceID,
		RemoteAddr: e.config.ACSURL,
		Body:       log.NewBodyEvent(body, status),
	})
}

func (e *Engine) logMessage(sid string, dir log.Direction, id, method string, fault *cwmp.Fault, events []string) {
	msg := &log.MessageEvent{Method: method, RequestID: id, Events: events}
	if fault != nil {
		code := fault.FaultCode
		msg.FaultCode = &code
	}
	e.protocol.Log(log.Event{
		Timestamp: time.Now(),
		SessionID: sid,
		Direction: dir,
		Layer:     log.LayerRPC,
		Category:  log.CategoryMessage,
		DeviceID:  e.config.DeviceID,
		Message:   msg,
	})
}

func (e *Engine) logState(sid string, from, to State) {
	e.protocol.Log(log.Event{
		Timestamp: time.Now(),
		SessionID: sid,
		Layer:     log.LayerSession,
		Category:  log.CategoryState,
		DeviceID:  e.config.DeviceID,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntitySession,
			OldState: from.String(),
			NewState: to.String(),
		},
	})
}

// debugLog logs a debug message if logging is enabled.
func (e *Engine) debugLog(msg string, args ...any) {
	if e.config.Logger != nil {
		e.config.Logger.Debug(msg, args...)
	}
}

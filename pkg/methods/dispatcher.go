package methods

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/cwmpsim/cwmpsim-go/pkg/cwmp"
	"github.com/cwmpsim/cwmpsim-go/pkg/params"
)

// Dispatcher errors.
var (
	ErrMethodNotSupported = errors.New("method not supported")
	ErrMissingHandler     = errors.New("missing handler")
	ErrUnknownHandler     = errors.New("handler for unknown method")
)

// PendingMessage produces a CPE-initiated request sent at the start of the
// next session. It is evaluated at send time.
type PendingMessage func() cwmp.Message

// TransitionFunc receives the paths written by one SetParameterValues.
type TransitionFunc func(store params.Store, written params.WriteSet)

// Handler answers one ACS request.
type Handler func(env *Env, req *cwmp.Envelope) (cwmp.Message, error)

// Registry maps method names to handlers.
type Registry map[string]Handler

// DefaultRegistry returns the handlers for every supported method.
func DefaultRegistry() Registry {
	return Registry{
		cwmp.MethodGetParameterNames:  GetParameterNames,
		cwmp.MethodGetParameterValues: GetParameterValues,
		cwmp.MethodSetParameterValues: SetParameterValues,
		cwmp.MethodAddObject:          AddObject,
		cwmp.MethodDeleteObject:       DeleteObject,
		cwmp.MethodDownload:           Download,
	}
}

// Env is what a handler may touch.
type Env struct {
	// Store is the device store, already guarded by the caller.
	Store params.Store

	// Now returns the current time.
	Now func() time.Time

	// Transitions is invoked by SetParameterValues after applying writes.
	Transitions TransitionFunc

	// Constructors holds per-model AddObject constructors.
	Constructors ObjectConstructors

	// Downloader performs Download fetches.
	Downloader *Downloader

	// Queue appends a message for the next session.
	Queue func(PendingMessage)

	// Trigger requests a session with the given event code.
	Trigger func(event string)
}

func (e *Env) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// Config configures a Dispatcher.
type Config struct {
	Transitions  TransitionFunc
	Constructors ObjectConstructors
	Downloader   *Downloader

	// Logger is the optional logger for debug output.
	Logger *slog.Logger
}

// Dispatcher routes decoded ACS requests to handlers.
type Dispatcher struct {
	handlers Registry
	config   Config
}

// NewDispatcher validates reg against cwmp.SupportedMethods.
func NewDispatcher(reg Registry, cfg Config) (*Dispatcher, error) {
	supported := make(map[string]bool, len(cwmp.SupportedMethods))
	for _, m := range cwmp.SupportedMethods {
		supported[m] = true
		if reg[m] == nil {
			return nil, fmt.Errorf("%w: %s", ErrMissingHandler, m)
		}
	}

	names := make([]string, 0, len(reg))
	for name := range reg {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if !supported[name] {
			return nil, fmt.Errorf("%w: %s", ErrUnknownHandler, name)
		}
	}

	return &Dispatcher{handlers: reg, config: cfg}, nil
}

// Dispatch runs the handler for req. The returned message is always
// non-nil and is what the CPE sends back: the handler's response or a SOAP
// fault. The error is ErrMethodNotSupported for unknown methods, the
// *cwmp.Fault a handler returned, or a wrapped internal error.
func (d *Dispatcher) Dispatch(env *Env, req *cwmp.Envelope) (cwmp.Message, error) {
	h, ok := d.handlers[req.Method]
	if !ok {
		d.debugLog("unsupported method", "method", req.Method)
		return cwmp.NewSOAPFault(cwmp.NewFault(cwmp.FaultMethodNotSupported, "Method not supported")),
			fmt.Errorf("%w: %s", ErrMethodNotSupported, req.Method)
	}

	d.fill(env)
	resp, err := h(env, req)
	if err != nil {
		var fault *cwmp.Fault
		if !errors.As(err, &fault) {
			fault = cwmp.NewFault(cwmp.FaultInternalError, "Internal error")
			err = fmt.Errorf("%s: %w", req.Method, err)
		}
		d.debugLog("handler fault", "method", req.Method, "code", fault.FaultCode, "error", err)
		return cwmp.NewSOAPFault(fault), err
	}

	d.debugLog("handled", "method", req.Method, "response", resp.MethodName())
	return resp, nil
}

func (d *Dispatcher) fill(env *Env) {
	if env.Transitions == nil {
		env.Transitions = d.config.Transitions
	}
	if env.Constructors == nil {
		env.Constructors = d.config.Constructors
	}
	if env.Downloader == nil {
		env.Downloader = d.config.Downloader
	}
}

// debugLog logs a debug message if logging is enabled.
func (d *Dispatcher) debugLog(msg string, args ...any) {
	if d.config.Logger != nil {
		d.config.Logger.Debug(msg, args...)
	}
}

package diagnostics

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cwmpsim/cwmpsim-go/pkg/duration"
	"github.com/cwmpsim/cwmpsim-go/pkg/params"
)

// Scheduler errors.
var (
	ErrUnknownDiagnostic = errors.New("unknown diagnostic")
	ErrUnknownResult     = errors.New("unknown diagnostic result")
	ErrNotSupported      = errors.New("diagnostic not supported by device model")
)

// Diagnostics state values.
const (
	StateNone      = "None"
	StateRequested = "Requested"
	StateComplete  = "Complete"

	ErrorCannotResolveHostName = "Error_CannotResolveHostName"
	ErrorOther                 = "Error_Other"
	ErrorInternal              = "Error_Internal"
	ErrorMaxHopCountExceeded   = "Error_MaxHopCountExceeded"
)

// Result keys shared by every diagnostic.
const (
	ResultDefault = "default"
	ResultError   = "error"
)

// stateField is the leaf holding a diagnostic's state.
const stateField = "DiagnosticsState"

// Defaults.
const (
	DefaultDuration = 2 * time.Second
	DefaultTimeUnit = time.Second
)

// Notifier is told when a diagnostic completes.
type Notifier interface {
	DiagnosticComplete(name string)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(name string)

// DiagnosticComplete implements Notifier.
func (f NotifierFunc) DiagnosticComplete(name string) { f(name) }

// Config configures a Scheduler.
type Config struct {
	// Duration is how long a simulated test runs.
	Duration time.Duration

	// TimeUnit is the length of one unit of the speed test's
	// TimeBasedTestDuration and related parameters.
	TimeUnit time.Duration

	// Logger is the optional logger for debug output.
	Logger *slog.Logger
}

// DefaultConfig returns the default scheduler configuration.
func DefaultConfig() Config {
	return Config{
		Duration: DefaultDuration,
		TimeUnit: DefaultTimeUnit,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Duration < 0 {
		return fmt.Errorf("diagnostics: negative duration %v", c.Duration)
	}
	if c.TimeUnit <= 0 {
		return fmt.Errorf("diagnostics: time unit must be positive, got %v", c.TimeUnit)
	}
	return nil
}

// Outcome is how a queue entry ended.
type Outcome uint8

const (
	// OutcomePending means the entry is queued or running.
	OutcomePending Outcome = iota

	// OutcomeCompleted means the timer fired and results were written.
	OutcomeCompleted

	// OutcomeInterrupted means the entry was cancelled first.
	OutcomeInterrupted
)

// String returns the outcome name.
func (o Outcome) String() string {
	switch o {
	case OutcomePending:
		return "PENDING"
	case OutcomeCompleted:
		return "COMPLETED"
	case OutcomeInterrupted:
		return "INTERRUPTED"
	default:
		return "UNKNOWN"
	}
}

// entry is one queued run.
type entry struct {
	name     string
	root     string
	result   ResultFunc
	duration time.Duration
	handle   *duration.Handle
	outcome  Outcome
}

// state is the per-diagnostic bookkeeping.
type state struct {
	entry     *entry
	resultKey string
}

// Scheduler runs the diagnostics of one device.
type Scheduler struct {
	config Config
	tx     *params.Tx
	timers *duration.Manager
	defs   []*Definition
	byName map[string]*Definition

	mu       sync.Mutex
	states   map[string]*state
	queue    []*entry
	running  *entry
	notifier Notifier
	handlers []EventHandler
	stopped  bool
}

// NewScheduler creates a scheduler for the device guarded by tx, with the
// given diagnostics (Builtin() when none are passed).
func NewScheduler(cfg Config, tx *params.Tx, defs ...*Definition) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(defs) == 0 {
		defs = Builtin()
	}

	s := &Scheduler{
		config: cfg,
		tx:     tx,
		timers: duration.NewManager(),
		defs:   defs,
		byName: make(map[string]*Definition, len(defs)),
		states: make(map[string]*state, len(defs)),
	}
	for _, d := range defs {
		s.byName[d.Name] = d
		s.states[d.Name] = &state{resultKey: ResultDefault}
	}
	return s, nil
}

// SetNotifier sets who is told about completions.
func (s *Scheduler) SetNotifier(n Notifier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifier = n
}

// Names returns the diagnostic names in evaluation order.
func (s *Scheduler) Names() []string {
	names := make([]string, len(s.defs))
	for i, d := range s.defs {
		names[i] = d.Name
	}
	return names
}

// SetResult selects the result function for subsequent runs of name.
func (s *Scheduler) SetResult(name, key string) error {
	def, ok := s.byName[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDiagnostic, name)
	}
	if _, ok := def.Results[key]; !ok && key != ResultError {
		return fmt.Errorf("%w: %s/%s", ErrUnknownResult, name, key)
	}

	s.mu.Lock()
	s.states[name].resultKey = key
	s.mu.Unlock()
	s.debugLog("result selected", "diagnostic", name, "result", key)
	return nil
}

// Evaluate applies the transition rules to the paths written by one
// SetParameterValues. It must run inside the device transaction.
func (s *Scheduler) Evaluate(store params.Store, written params.WriteSet) {
	schema := params.DetectSchema(store)
	for _, def := range s.defs {
		root := def.Root(schema)
		if root == "" {
			continue
		}
		s.evaluate(store, def, root, written)
	}
}

func (s *Scheduler) evaluate(store params.Store, def *Definition, root string, written params.WriteSet) {
	field := root + stateField

	if !written.Has(field) {
		if written.HasAny(root, def.ConfigFields...) {
			s.Interrupt(def.Name)
			params.SetValue(store, field, StateNone)
			s.debugLog("test parameter written, state reset", "diagnostic", def.Name)
		}
		return
	}

	rec, ok := store.Get(field)
	if !ok || rec.Value != StateRequested {
		return
	}

	s.Interrupt(def.Name)

	result := s.selectResult(def)
	errState := def.Validate(store, root)
	if errState != "" {
		result = setState(errState)
		s.debugLog("validation failed", "diagnostic", def.Name, "state", errState)
	}

	// A failed validation always reports after the default duration.
	d := s.config.Duration
	if errState == "" && def.Duration != nil {
		if custom := def.Duration(store, root, s.config); custom > 0 {
			d = custom
		}
	}

	s.enqueue(&entry{name: def.Name, root: root, result: result, duration: d})
}

func (s *Scheduler) selectResult(def *Definition) ResultFunc {
	s.mu.Lock()
	key := s.states[def.Name].resultKey
	s.mu.Unlock()

	if fn, ok := def.Results[key]; ok {
		return fn
	}
	if key == ResultError {
		return setState(ErrorInternal)
	}
	return def.Results[ResultDefault]
}

func (s *Scheduler) enqueue(e *entry) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.states[e.name].entry = e
	s.queue = append(s.queue, e)
	depth := len(s.queue)
	s.mu.Unlock()

	s.debugLog("queued", "diagnostic", e.name, "depth", depth)
	s.emit(Event{Type: EventQueued, Name: e.name})
}

// Run starts the head of the queue when the permit is free. The session
// engine calls it after every session close.
func (s *Scheduler) Run() {
	s.mu.Lock()
	if s.stopped || s.running != nil || len(s.queue) == 0 {
		s.mu.Unlock()
		return
	}
	e := s.queue[0]
	s.queue = s.queue[1:]
	s.running = e

	h, err := s.timers.Schedule("diag:"+e.name, e.duration, func() { s.complete(e) })
	if err != nil {
		s.running = nil
		e.outcome = OutcomeInterrupted
		if st := s.states[e.name]; st.entry == e {
			st.entry = nil
		}
		s.mu.Unlock()
		s.debugLog("timer not armed", "diagnostic", e.name, "error", err)
		return
	}
	e.handle = h
	s.mu.Unlock()

	s.debugLog("started", "diagnostic", e.name, "duration", e.duration)
	s.emit(Event{Type: EventStarted, Name: e.name})
}

// complete runs when an entry's timer fires.
func (s *Scheduler) complete(e *entry) {
	var (
		completed bool
		final     string
		notifier  Notifier
	)

	s.tx.Do(func(store params.Store) {
		s.mu.Lock()
		if e.outcome != OutcomePending {
			s.mu.Unlock()
			return
		}
		e.outcome = OutcomeCompleted
		if s.running == e {
			s.running = nil
		}
		if st := s.states[e.name]; st.entry == e {
			st.entry = nil
		}
		notifier = s.notifier
		s.mu.Unlock()

		e.result(&Run{
			Store:    store,
			Root:     e.root,
			Schema:   params.DetectSchema(store),
			Now:      time.Now(),
			Duration: e.duration,
			Config:   s.config,
		})
		completed = true
		final = params.Value(store, e.root+stateField, "")
	})

	if !completed {
		return
	}

	s.debugLog("completed", "diagnostic", e.name, "state", final)
	s.emit(Event{Type: EventCompleted, Name: e.name, State: final})
	if notifier != nil {
		notifier.DiagnosticComplete(e.name)
	}
}

// Interrupt cancels the queued or running entry of name. Repeated calls
// are no-ops.
func (s *Scheduler) Interrupt(name string) {
	s.mu.Lock()
	st, ok := s.states[name]
	if !ok || st.entry == nil {
		s.mu.Unlock()
		return
	}
	e := st.entry
	st.entry = nil
	interrupted := s.interruptLocked(e)
	s.mu.Unlock()

	if interrupted {
		s.debugLog("interrupted", "diagnostic", name)
		s.emit(Event{Type: EventInterrupted, Name: name})
	}
}

func (s *Scheduler) interruptLocked(e *entry) bool {
	if e.outcome != OutcomePending {
		return false
	}
	e.outcome = OutcomeInterrupted
	if e.handle != nil {
		e.handle.Cancel()
	}
	if s.running == e {
		s.running = nil
		return true
	}
	for i, q := range s.queue {
		if q == e {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			break
		}
	}
	return true
}

// Stop interrupts everything and rejects further runs.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	for _, st := range s.states {
		if st.entry != nil {
			s.interruptLocked(st.entry)
			st.entry = nil
		}
	}
	s.queue = nil
	s.running = nil
	s.mu.Unlock()

	s.timers.Close()
}

// Running returns the name of the running diagnostic, or "".
func (s *Scheduler) Running() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running == nil {
		return ""
	}
	return s.running.name
}

// Queued returns the names waiting for the permit, in order.
func (s *Scheduler) Queued() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, len(s.queue))
	for i, e := range s.queue {
		names[i] = e.name
	}
	return names
}

// debugLog logs a debug message if logging is enabled.
func (s *Scheduler) debugLog(msg string, args ...any) {
	if s.config.Logger != nil {
		s.config.Logger.Debug(msg, args...)
	}
}

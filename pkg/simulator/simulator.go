package simulator

import (
	"context"
	"fmt"
	"sync"

	"github.com/cwmpsim/cwmpsim-go/pkg/cwmp"
	"github.com/cwmpsim/cwmpsim-go/pkg/diagnostics"
	"github.com/cwmpsim/cwmpsim-go/pkg/discovery"
	"github.com/cwmpsim/cwmpsim-go/pkg/methods"
	"github.com/cwmpsim/cwmpsim-go/pkg/params"
	"github.com/cwmpsim/cwmpsim-go/pkg/persistence"
	"github.com/cwmpsim/cwmpsim-go/pkg/session"
)

// macAddressPaths receive Config.MACAddress when present.
var macAddressPaths = []string{
	params.RootTR098 + "LANDevice.1.LANEthernetInterfaceConfig.1.MACAddress",
	params.RootTR181 + "Ethernet.Interface.1.MACAddress",
}

// serialNumberPaths receive Config.SerialNumber when present.
var serialNumberPaths = []string{
	"DeviceID.SerialNumber",
	params.RootTR181 + "DeviceInfo.SerialNumber",
	params.RootTR098 + "DeviceInfo.SerialNumber",
}

// Simulator is one simulated CPE.
type Simulator struct {
	config Config
	serial string

	tx         *params.Tx
	downloader *methods.Downloader
	dispatcher *methods.Dispatcher
	scheduler  *diagnostics.Scheduler
	engine     *session.Engine

	restored bool

	mu      sync.Mutex
	started bool
	stopped bool

	ready     chan struct{}
	readyOnce sync.Once
}

// New wires a simulator around store. store must not be used directly
// afterwards; go through Get, SetLocal or Store.
func New(store params.Store, cfg Config) (*Simulator, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store is required", ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Simulator{
		config: cfg,
		tx:     params.NewTx(store),
		ready:  make(chan struct{}),
	}

	if cfg.StateStore != nil {
		state, err := cfg.StateStore.Load()
		if err != nil {
			return nil, fmt.Errorf("load state: %w", err)
		}
		if state != nil {
			state.Apply(store)
			s.restored = true
		}
	}
	s.prepareModel(store)

	scheduler, err := diagnostics.NewScheduler(cfg.diagnosticsConfig(), s.tx, diagnostics.Builtin()...)
	if err != nil {
		return nil, err
	}
	s.scheduler = scheduler

	dlCfg := methods.DefaultDownloaderConfig()
	dlCfg.Tx = s.tx
	dlCfg.NotifyDelay = cfg.DownloadNotifyDelay
	dlCfg.Logger = cfg.Logger
	s.downloader = methods.NewDownloader(dlCfg)

	ctors := methods.ObjectConstructors{}
	ctors.Merge(cfg.ObjectConstructors)
	ctors.Merge(methods.BuiltinConstructors(store))

	s.dispatcher, err = methods.NewDispatcher(methods.DefaultRegistry(), methods.Config{
		Transitions:  scheduler.Evaluate,
		Constructors: ctors,
		Downloader:   s.downloader,
		Logger:       cfg.Logger,
	})
	if err != nil {
		return nil, err
	}

	sessCfg := cfg.sessionConfig()
	sessCfg.DeviceID = s.serial
	if cfg.StateStore != nil && !s.restored {
		sessCfg.BootEvents = []string{cwmp.EventBootstrap, cwmp.EventBoot}
	}
	s.engine, err = session.NewEngine(sessCfg, s.tx, s.dispatcher, nil, scheduler)
	if err != nil {
		return nil, err
	}
	scheduler.SetNotifier(s.engine)

	s.engine.OnEvent(func(ev session.Event) {
		if ev.Type == session.EventSessionClosed {
			s.readyOnce.Do(func() { close(s.ready) })
		}
	})
	if cfg.Journal != nil {
		s.engine.OnEvent(cfg.Journal.SessionHandler(s.journalError))
		scheduler.OnEvent(cfg.Journal.DiagnosticHandler(s.serial, s.journalError))
	}
	if cfg.Metrics != nil {
		s.engine.OnEvent(cfg.Metrics.SessionHandler())
		scheduler.OnEvent(cfg.Metrics.DiagnosticHandler(s.serial))
	}

	return s, nil
}

// prepareModel injects the configured serial number and MAC address.
func (s *Simulator) prepareModel(store params.Store) {
	for _, p := range serialNumberPaths {
		if s.config.SerialNumber != "" {
			params.SetValue(store, p, s.config.SerialNumber)
		}
	}
	for _, p := range macAddressPaths {
		if s.config.MACAddress != "" {
			params.SetValue(store, p, s.config.MACAddress)
		}
	}
	_, rec, _ := params.First(store, serialNumberPaths...)
	s.serial = rec.Value
}

// Start opens the connection-request listener, announces it when an
// advertiser is configured and opens the boot session. It returns once
// the boot session has been started, not finished; see Ready.
func (s *Simulator) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.started = true
	s.mu.Unlock()

	if err := s.engine.Start(ctx); err != nil {
		return err
	}

	if s.config.Advertiser != nil {
		if url := s.engine.ConnectionRequestURL(); url != "" {
			s.advertise(ctx, url)
		}
	}

	s.debugLog("started", "serial", s.serial, "connection_request_url", s.engine.ConnectionRequestURL())
	return nil
}

func (s *Simulator) advertise(ctx context.Context, crURL string) {
	info := &discovery.DeviceInfo{Serial: s.serial}
	s.tx.Do(func(store params.Store) {
		info.OUI = params.Value(store, "DeviceID.OUI", "")
		info.ProductClass = params.Value(store, "DeviceID.ProductClass", "")
		info.Manufacturer = params.Value(store, "DeviceID.Manufacturer", "")
	})
	if err := discovery.InfoFromURL(info, crURL); err != nil {
		s.debugLog("not advertised", "error", err)
		return
	}
	if err := s.config.Advertiser.Advertise(ctx, info); err != nil {
		s.debugLog("not advertised", "error", err)
	}
}

// Stop ends the simulator: pending sessions, diagnostic timers, downloads
// and the listener are shut down, then the store is saved when a state
// store is configured. Stop is idempotent.
func (s *Simulator) Stop() error {
	s.mu.Lock()
	if !s.started || s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	s.mu.Unlock()

	s.engine.Stop()
	s.scheduler.Stop()
	s.downloader.Close()

	if s.config.Advertiser != nil {
		if err := s.config.Advertiser.Stop(s.serial); err != nil {
			s.debugLog("advertiser stop", "error", err)
		}
	}

	if s.config.StateStore == nil {
		return nil
	}
	var state *persistence.DeviceState
	s.tx.Do(func(store params.Store) {
		state = persistence.Capture(store, s.serial)
	})
	if err := s.config.StateStore.Save(state); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}

// Ready is closed after the first session closes.
func (s *Simulator) Ready() <-chan struct{} {
	return s.ready
}

// SerialNumber returns the device serial number.
func (s *Simulator) SerialNumber() string {
	return s.serial
}

// ConnectionRequestURL returns the published connection-request URL.
func (s *Simulator) ConnectionRequestURL() string {
	return s.engine.ConnectionRequestURL()
}

// State returns the session state.
func (s *Simulator) State() session.State {
	return s.engine.State()
}

// SetResultForDiagnostic selects the result applied when the named
// diagnostic next completes.
func (s *Simulator) SetResultForDiagnostic(name, key string) error {
	return s.scheduler.SetResult(name, key)
}

// Diagnostics returns the names of the supported diagnostics.
func (s *Simulator) Diagnostics() []string {
	return s.scheduler.Names()
}

// TriggerInform requests a session with event. An empty event reports
// "2 PERIODIC".
func (s *Simulator) TriggerInform(event string) error {
	if !s.isStarted() {
		return ErrNotStarted
	}
	if event == "" {
		s.engine.TriggerDefault()
		return nil
	}
	s.engine.Trigger(event)
	return nil
}

// SetLocal changes a leaf value as a local (non-ACS) write. The write is
// applied once no session is open.
func (s *Simulator) SetLocal(path, value string) error {
	if params.IsObject(path) {
		return fmt.Errorf("%w: %s is an object", ErrUnknownPath, path)
	}
	if _, ok := s.Get(path); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPath, path)
	}
	s.engine.QueueAction(func() {
		s.tx.Do(func(store params.Store) {
			params.SetValue(store, path, value)
		})
		s.debugLog("local write", "path", path, "value", value)
	})
	return nil
}

// Get returns the record at path.
func (s *Simulator) Get(path string) (params.Record, bool) {
	var (
		rec params.Record
		ok  bool
	)
	s.tx.Do(func(store params.Store) {
		rec, ok = store.Get(path)
	})
	return rec, ok
}

// Do runs fn with exclusive access to the store.
func (s *Simulator) Do(fn func(params.Store)) {
	s.tx.Do(fn)
}

// Store returns the device store for unguarded single reads.
func (s *Simulator) Store() params.Store {
	return s.tx.Store()
}

// OnEvent registers a session event handler.
func (s *Simulator) OnEvent(handler session.EventHandler) {
	s.engine.OnEvent(handler)
}

// OnDiagnosticEvent registers a diagnostics event handler.
func (s *Simulator) OnDiagnosticEvent(handler diagnostics.EventHandler) {
	s.scheduler.OnEvent(handler)
}

// Errors returns the channel transport failures and unsupported methods
// are reported on.
func (s *Simulator) Errors() <-chan error {
	return s.engine.Errors()
}

func (s *Simulator) isStarted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started && !s.stopped
}

func (s *Simulator) journalError(err error) {
	s.debugLog("journal write failed", "error", err)
}

// debugLog logs a debug message if logging is enabled.
func (s *Simulator) debugLog(msg string, args ...any) {
	if s.config.Logger != nil {
		s.config.Logger.Debug(msg, args...)
	}
}

package methods

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cwmpsim/cwmpsim-go/pkg/cwmp"
	"github.com/cwmpsim/cwmpsim-go/pkg/duration"
	"github.com/cwmpsim/cwmpsim-go/pkg/params"
)

// Download defaults.
const (
	DefaultDownloadTimeout = 30 * time.Second
	DefaultNotifyDelay     = 2 * time.Second
	DefaultUnsupportedWait = 30 * time.Second

	// maxFirmwareManifest bounds how much of a download body is inspected
	// for a version manifest.
	maxFirmwareManifest = 1 << 20
)

// DownloaderConfig configures a Downloader.
type DownloaderConfig struct {
	// Client performs the fetch. Nil uses a client with DefaultDownloadTimeout.
	Client *http.Client

	// Tx guards store updates made when a fetch completes.
	Tx *params.Tx

	// Timers arms the delayed TRANSFER COMPLETE session. Nil uses a private
	// manager.
	Timers *duration.Manager

	// NotifyDelay is the wait between a settled fetch and the session
	// reporting it.
	NotifyDelay time.Duration

	// UnsupportedWait is how long a Download with a non-HTTP URL waits
	// before reporting the download timeout fault.
	UnsupportedWait time.Duration

	// Logger is the optional logger for debug output.
	Logger *slog.Logger
}

// DefaultDownloaderConfig returns the default download settings.
func DefaultDownloaderConfig() DownloaderConfig {
	return DownloaderConfig{
		NotifyDelay:     DefaultNotifyDelay,
		UnsupportedWait: DefaultUnsupportedWait,
	}
}

// Downloader runs Download fetches in the background.
type Downloader struct {
	config DownloaderConfig
	client *http.Client
	timers *duration.Manager

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewDownloader creates a downloader.
func NewDownloader(cfg DownloaderConfig) *Downloader {
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: DefaultDownloadTimeout}
	}
	timers := cfg.Timers
	if timers == nil {
		timers = duration.NewManager()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Downloader{
		config: cfg,
		client: client,
		timers: timers,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Close aborts running fetches and waits for them to return.
func (d *Downloader) Close() {
	d.cancel()
	d.wg.Wait()
}

// transfer holds the outcome reported by TransferComplete. It starts as the
// download timeout fault and is overwritten when the fetch settles.
type transfer struct {
	mu    sync.Mutex
	fault cwmp.FaultStruct
}

func (t *transfer) set(code int, msg string) {
	t.mu.Lock()
	t.fault = cwmp.FaultStruct{FaultCode: code, FaultString: msg}
	t.mu.Unlock()
}

func (t *transfer) get() cwmp.FaultStruct {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fault
}

// Start begins fetching req.URL and returns the TransferComplete message for
// the next session. trigger is called with "7 TRANSFER COMPLETE" once the
// outcome is known.
func (d *Downloader) Start(req cwmp.Download, schema params.Schema, now time.Time, trigger func(event string)) PendingMessage {
	t := &transfer{fault: cwmp.FaultStruct{FaultCode: cwmp.FaultDownloadFailure, FaultString: "Download timeout"}}
	startTime := now.UTC().Format(cwmp.TimeFormat)

	msg := func() cwmp.Message {
		return &cwmp.TransferComplete{
			CommandKey:   req.CommandKey,
			FaultStruct:  t.get(),
			StartTime:    startTime,
			CompleteTime: time.Now().UTC().Format(cwmp.TimeFormat),
		}
	}

	key := "download:" + cwmp.NewID()
	notify := func(delay time.Duration) {
		if trigger == nil {
			return
		}
		if _, err := d.timers.Schedule(key, delay, func() { trigger(cwmp.EventTransferComplete) }); err != nil {
			d.debugLog("download notify not armed", "key", key, "error", err)
		}
	}

	if !strings.HasPrefix(req.URL, "http://") && !strings.HasPrefix(req.URL, "https://") {
		d.debugLog("download scheme not supported", "url", req.URL)
		notify(d.config.UnsupportedWait)
		return msg
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.fetch(req, schema, t)
		if d.ctx.Err() == nil {
			notify(d.config.NotifyDelay)
		}
	}()

	return msg
}

func (d *Downloader) fetch(req cwmp.Download, schema params.Schema, t *transfer) {
	httpReq, err := http.NewRequestWithContext(d.ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		t.set(cwmp.FaultDownloadFailure, err.Error())
		return
	}
	if req.Username != "" {
		httpReq.SetBasicAuth(req.Username, req.Password)
	}

	resp, err := d.client.Do(httpReq)
	if err != nil {
		d.debugLog("download failed", "url", req.URL, "error", err)
		t.set(cwmp.FaultDownloadFailure, err.Error())
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		t.set(cwmp.FaultUnexpectedStatus, fmt.Sprintf("Unexpected response %d", resp.StatusCode))
		return
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFirmwareManifest))
	t.set(0, "")
	if err != nil {
		return
	}

	var manifest struct {
		Version string `json:"version"`
	}
	if err := json.Unmarshal(body, &manifest); err != nil || manifest.Version == "" {
		d.debugLog("download body carries no version", "url", req.URL)
		return
	}

	if d.config.Tx == nil {
		return
	}
	path := schema.Pick(
		params.RootTR098+"DeviceInfo.SoftwareVersion",
		params.RootTR181+"DeviceInfo.SoftwareVersion",
	)
	d.config.Tx.Do(func(s params.Store) {
		params.SetValue(s, path, manifest.Version)
	})
	d.debugLog("software version updated", "version", manifest.Version)
}

// debugLog logs a debug message if logging is enabled.
func (d *Downloader) debugLog(msg string, args ...any) {
	if d.config.Logger != nil {
		d.config.Logger.Debug(msg, args...)
	}
}

// Download starts the fetch and queues its TransferComplete. The response
// always reports Status 1 with unknown times.
func Download(env *Env, req *cwmp.Envelope) (cwmp.Message, error) {
	var in cwmp.Download
	if err := req.DecodeBody(&in); err != nil {
		return nil, invalidArguments(err)
	}
	if env.Downloader == nil {
		return nil, fmt.Errorf("no downloader configured")
	}

	msg := env.Downloader.Start(in, params.DetectSchema(env.Store), env.now(), env.Trigger)
	if env.Queue != nil {
		env.Queue(msg)
	}

	return &cwmp.DownloadResponse{
		Status:       1,
		StartTime:    cwmp.UnknownTime,
		CompleteTime: cwmp.UnknownTime,
	}, nil
}

// Package metrics exports simulator activity as Prometheus metrics.
package metrics

import (
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cwmpsim/cwmpsim-go/pkg/diagnostics"
	"github.com/cwmpsim/cwmpsim-go/pkg/session"
)

const namespace = "cwmpsim"

// labelSep joins label values into a map key. It cannot occur in a label.
const labelSep = "\x00"

// Collector counts engine and scheduler events per device. It implements
// prometheus.Collector.
type Collector struct {
	sessions      *prometheus.Desc
	active        *prometheus.Desc
	rpcs          *prometheus.Desc
	faults        *prometheus.Desc
	errors        *prometheus.Desc
	connRequests  *prometheus.Desc
	diagnostics   *prometheus.Desc
	interruptions *prometheus.Desc

	mu     sync.Mutex
	counts map[*prometheus.Desc]map[string]float64
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	c := &Collector{
		sessions: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "session", "opened_total"),
			"Sessions opened with the ACS",
			[]string{"device"},
			nil,
		),
		active: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "session", "active"),
			"Whether a session is currently open",
			[]string{"device"},
			nil,
		),
		rpcs: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "rpc", "messages_total"),
			"Messages exchanged with the ACS, empty bodies have method \"\"",
			[]string{"device", "direction", "method"},
			nil,
		),
		faults: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "rpc", "faults_total"),
			"CWMP faults sent or received",
			[]string{"device", "direction", "code"},
			nil,
		),
		errors: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "session", "errors_total"),
			"Transport failures and unsupported ACS methods",
			[]string{"device"},
			nil,
		),
		connRequests: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "session", "connection_requests_total"),
			"Connection requests received from the ACS",
			[]string{"device"},
			nil,
		),
		diagnostics: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "diagnostics", "completed_total"),
			"Diagnostic runs completed, by final DiagnosticsState",
			[]string{"device", "name", "state"},
			nil,
		),
		interruptions: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "diagnostics", "interrupted_total"),
			"Diagnostic runs interrupted by a configuration write",
			[]string{"device", "name"},
			nil,
		),
	}
	c.counts = make(map[*prometheus.Desc]map[string]float64)
	return c
}

func (c *Collector) add(desc *prometheus.Desc, delta float64, labels ...string) {
	key := strings.Join(labels, labelSep)
	c.mu.Lock()
	defer c.mu.Unlock()
	m := c.counts[desc]
	if m == nil {
		m = make(map[string]float64)
		c.counts[desc] = m
	}
	m[key] += delta
}

func (c *Collector) set(desc *prometheus.Desc, value float64, labels ...string) {
	key := strings.Join(labels, labelSep)
	c.mu.Lock()
	defer c.mu.Unlock()
	m := c.counts[desc]
	if m == nil {
		m = make(map[string]float64)
		c.counts[desc] = m
	}
	m[key] = value
}

// SessionHandler returns an engine event handler feeding the collector.
func (c *Collector) SessionHandler() session.EventHandler {
	return func(ev session.Event) {
		dev := ev.DeviceID
		switch ev.Type {
		case session.EventSessionOpened:
			c.add(c.sessions, 1, dev)
			c.set(c.active, 1, dev)
		case session.EventSessionClosed:
			c.set(c.active, 0, dev)
		case session.EventMessageSent, session.EventMessageReceived:
			dir := "sent"
			if ev.Type == session.EventMessageReceived {
				dir = "received"
			}
			c.add(c.rpcs, 1, dev, dir, ev.Method)
			if ev.FaultCode != 0 {
				c.add(c.faults, 1, dev, dir, strconv.Itoa(ev.FaultCode))
			}
		case session.EventError:
			c.add(c.errors, 1, dev)
		case session.EventConnectionRequest:
			c.add(c.connRequests, 1, dev)
		}
	}
}

// DiagnosticHandler returns a scheduler event handler feeding the
// collector for device.
func (c *Collector) DiagnosticHandler(device string) diagnostics.EventHandler {
	return func(ev diagnostics.Event) {
		switch ev.Type {
		case diagnostics.EventCompleted:
			c.add(c.diagnostics, 1, device, ev.Name, ev.State)
		case diagnostics.EventInterrupted:
			c.add(c.interruptions, 1, device, ev.Name)
		}
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.sessions
	ch <- c.active
	ch <- c.rpcs
	ch <- c.faults
	ch <- c.errors
	ch <- c.connRequests
	ch <- c.diagnostics
	ch <- c.interruptions
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for desc, values := range c.counts {
		kind := prometheus.CounterValue
		if desc == c.active {
			kind = prometheus.GaugeValue
		}
		keys := make([]string, 0, len(values))
		for k := range values {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			ch <- prometheus.MustNewConstMetric(desc, kind, values[k], strings.Split(k, labelSep)...)
		}
	}
}

// Handler returns an HTTP handler serving the metrics of reg.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwmpsim/cwmpsim-go/pkg/discovery"
	"github.com/cwmpsim/cwmpsim-go/pkg/journal"
	"github.com/cwmpsim/cwmpsim-go/pkg/metrics"
)

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
	return w
}

func TestNewMuxMetricsOnly(t *testing.T) {
	mux, err := newMux(metrics.NewCollector(), nil)
	require.NoError(t, err)

	w := get(t, mux, "/metrics")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")

	w = get(t, mux, "/api/v1/health")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestNewMuxWithJournal(t *testing.T) {
	store, err := journal.Open(":memory:")
	require.NoError(t, err)
	defer store.Close()

	mux, err := newMux(metrics.NewCollector(), store)
	require.NoError(t, err)

	w := get(t, mux, "/api/v1/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), version)

	w = get(t, mux, "/api/v1/sessions")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"total":0`)
}

func TestParseLevel(t *testing.T) {
	for _, s := range []string{"debug", "INFO", "", "warn", "error"} {
		_, err := parseLevel(s)
		assert.NoError(t, err, s)
	}
	_, err := parseLevel("trace")
	assert.Error(t, err)
}

func TestPrintServices(t *testing.T) {
	var buf bytes.Buffer
	printServices(&buf, nil)
	assert.Equal(t, "No devices found\n", buf.String())

	buf.Reset()
	printServices(&buf, []*discovery.DeviceService{
		{Serial: "SIM2", Manufacturer: "cwmpsim", ProductClass: "SimDevice", OUI: "000000", Port: 7547, Addresses: []string{"192.0.2.2"}, Path: "/"},
		{Serial: "SIM1", Manufacturer: "cwmpsim", ProductClass: "SimDevice", OUI: "000000", Port: 7547, Addresses: []string{"192.0.2.1"}, Path: "/"},
	})
	out := buf.String()
	assert.Less(t, strings.Index(out, "SIM1"), strings.Index(out, "SIM2"))
	assert.Contains(t, out, "http://192.0.2.1:7547/")
}

package commands

import (
	"path/filepath"
	"testing"

	"github.com/cwmpsim/cwmpsim-go/pkg/log"
)

// createTestLogFile writes events to a temporary capture file.
func createTestLogFile(t *testing.T, events []log.Event) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test"+log.FileExtension)
	logger, err := log.NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger: %v", err)
	}
	for _, e := range events {
		logger.Log(e)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	return path
}

func intPtr(v int) *int { return &v }

func sampleSession() []log.Event {
	return sampleSessionAt(baseTime)
}

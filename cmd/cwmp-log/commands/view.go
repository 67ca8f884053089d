// Package commands implements the cwmp-log CLI commands.
package commands

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/cwmpsim/cwmpsim-go/pkg/cwmp"
	"github.com/cwmpsim/cwmpsim-go/pkg/log"
)

// TimestampFormat is used by view and export.
const TimestampFormat = "2006-01-02T15:04:05.000000Z"

// ViewOptions controls the view command.
type ViewOptions struct {
	Filter log.Filter

	// Bodies prints captured HTTP bodies, re-indented when they parse as XML.
	Bodies bool
}

// formatEvent writes a human-readable representation of the event to w.
func formatEvent(w io.Writer, event log.Event, bodies bool) {
	ts := event.Timestamp.UTC().Format(TimestampFormat)

	fmt.Fprintf(w, "%s [%s] [sess:%s] %-3s %s %s\n",
		ts, deviceLabel(event.DeviceID), shortenID(event.SessionID),
		event.Direction.String(), event.Layer.String(), typeLabel(event))

	switch {
	case event.Body != nil:
		formatBodyDetails(w, event.Body, bodies)
	case event.Message != nil:
		formatMessageDetails(w, event.Message)
	case event.StateChange != nil:
		formatStateChangeDetails(w, event.StateChange)
	case event.Error != nil:
		formatErrorDetails(w, event.Error)
	}
	if event.RemoteAddr != "" {
		fmt.Fprintf(w, "  Remote: %s\n", event.RemoteAddr)
	}

	fmt.Fprintln(w)
}

func typeLabel(event log.Event) string {
	switch {
	case event.Body != nil:
		return "Body"
	case event.Message != nil:
		if event.Message.Method == "" {
			return "(empty)"
		}
		return event.Message.Method
	case event.StateChange != nil:
		return "State"
	case event.Error != nil:
		return "Error"
	default:
		return "Unknown"
	}
}

func deviceLabel(id string) string {
	if id == "" {
		return "-"
	}
	return id
}

// shortenID returns the first 8 characters of a session ID.
func shortenID(id string) string {
	if id == "" {
		return "-"
	}
	if len(id) >= 8 {
		return id[:8]
	}
	return id
}

func formatBodyDetails(w io.Writer, body *log.BodyEvent, full bool) {
	fmt.Fprintf(w, "  Size: %d bytes", body.Size)
	if body.Status != 0 {
		fmt.Fprintf(w, "  Status: %d", body.Status)
	}
	fmt.Fprintln(w)
	if full && len(body.Data) > 0 {
		for _, line := range strings.Split(strings.TrimRight(string(cwmp.Format(body.Data)), "\n"), "\n") {
			fmt.Fprintf(w, "  | %s\n", line)
		}
		if body.Truncated {
			fmt.Fprintln(w, "  | (truncated)")
		}
	}
}

func formatMessageDetails(w io.Writer, msg *log.MessageEvent) {
	if msg.RequestID != "" {
		fmt.Fprintf(w, "  ID: %s\n", msg.RequestID)
	}
	if len(msg.Events) > 0 {
		fmt.Fprintf(w, "  Events: %s\n", strings.Join(msg.Events, ", "))
	}
	if msg.FaultCode != nil {
		fmt.Fprintf(w, "  Fault: %d\n", *msg.FaultCode)
	}
	if msg.ProcessingTime != nil {
		fmt.Fprintf(w, "  Duration: %s\n", formatDuration(*msg.ProcessingTime))
	}
}

func formatStateChangeDetails(w io.Writer, sc *log.StateChangeEvent) {
	if sc.Name != "" {
		fmt.Fprintf(w, "  %s: %s\n", sc.Entity.String(), sc.Name)
	} else {
		fmt.Fprintf(w, "  Entity: %s\n", sc.Entity.String())
	}
	if sc.OldState != "" {
		fmt.Fprintf(w, "  %s -> %s\n", sc.OldState, sc.NewState)
	} else {
		fmt.Fprintf(w, "  -> %s\n", sc.NewState)
	}
	if sc.Reason != "" {
		fmt.Fprintf(w, "  Reason: %s\n", sc.Reason)
	}
}

func formatErrorDetails(w io.Writer, err *log.ErrorEventData) {
	fmt.Fprintf(w, "  Layer: %s\n", err.Layer.String())
	fmt.Fprintf(w, "  Message: %s\n", err.Message)
	if err.Code != nil {
		fmt.Fprintf(w, "  Code: %d\n", *err.Code)
	}
	if err.Context != "" {
		fmt.Fprintf(w, "  Context: %s\n", err.Context)
	}
}

func formatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%.3fus", float64(d.Nanoseconds())/1000)
	}
	if d < time.Second {
		return fmt.Sprintf("%.3fms", float64(d.Microseconds())/1000)
	}
	return fmt.Sprintf("%.3fs", d.Seconds())
}

// ParseLayer parses a layer name (case-insensitive).
func ParseLayer(s string) (log.Layer, error) {
	switch strings.ToLower(s) {
	case "transport", "http":
		return log.LayerTransport, nil
	case "rpc":
		return log.LayerRPC, nil
	case "session":
		return log.LayerSession, nil
	default:
		return 0, fmt.Errorf("invalid layer: %s (must be transport, rpc or session)", s)
	}
}

// ParseDirection parses a direction name (case-insensitive).
func ParseDirection(s string) (log.Direction, error) {
	switch strings.ToLower(s) {
	case "in":
		return log.DirectionIn, nil
	case "out":
		return log.DirectionOut, nil
	default:
		return 0, fmt.Errorf("invalid direction: %s (must be in or out)", s)
	}
}

// ParseCategory parses a category name (case-insensitive).
func ParseCategory(s string) (log.Category, error) {
	switch strings.ToLower(s) {
	case "message":
		return log.CategoryMessage, nil
	case "state":
		return log.CategoryState, nil
	case "error":
		return log.CategoryError, nil
	default:
		return 0, fmt.Errorf("invalid category: %s (must be message, state or error)", s)
	}
}

// RunView prints every matching event of the capture file to output.
func RunView(path string, opts ViewOptions, output io.Writer) error {
	reader, err := log.NewFilteredReader(path, opts.Filter)
	if err != nil {
		return fmt.Errorf("failed to open capture file: %w", err)
	}
	defer reader.Close()

	for {
		event, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		formatEvent(output, event, opts.Bodies)
	}
}

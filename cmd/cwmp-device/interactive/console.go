// Package interactive provides the cwmp-device console.
package interactive

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/chzyer/readline"

	"github.com/cwmpsim/cwmpsim-go/pkg/params"
	"github.com/cwmpsim/cwmpsim-go/pkg/session"
)

// Device is the part of a simulator the console drives.
type Device interface {
	SerialNumber() string
	ConnectionRequestURL() string
	State() session.State
	Get(path string) (params.Record, bool)
	Do(fn func(params.Store))
	SetLocal(path, value string) error
	TriggerInform(event string) error
	SetResultForDiagnostic(name, key string) error
	Diagnostics() []string
}

// maxDumpLines caps the output of dump.
const maxDumpLines = 200

// Console handles interactive mode for cwmp-device.
type Console struct {
	rl  *readline.Instance
	out io.Writer

	mu       sync.Mutex
	devices  []Device
	selected int
}

// New creates a console reading from the terminal.
func New() (*Console, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "cpe> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return &Console{rl: rl, out: rl.Stdout()}, nil
}

func newConsole(out io.Writer, devices ...Device) *Console {
	return &Console{out: out, devices: devices}
}

// Stdout returns a writer that coordinates with the readline prompt.
func (c *Console) Stdout() io.Writer {
	if c.rl == nil {
		return os.Stdout
	}
	return c.rl.Stdout()
}

// Stderr returns a writer that coordinates with the readline prompt.
func (c *Console) Stderr() io.Writer {
	if c.rl == nil {
		return os.Stderr
	}
	return c.rl.Stderr()
}

// SetDevices replaces the devices the console operates on.
func (c *Console) SetDevices(devices []Device) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.devices = devices
	c.selected = 0
}

// Run starts the interactive command loop. cancel is called when the
// user quits.
func (c *Console) Run(ctx context.Context, cancel context.CancelFunc) {
	defer c.rl.Close()

	c.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		c.updatePrompt()
		line, err := c.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(c.out, "Exiting...")
			cancel()
			return
		}

		if quit := c.Execute(line); quit {
			fmt.Fprintln(c.out, "Exiting...")
			cancel()
			return
		}
	}
}

func (c *Console) updatePrompt() {
	if dev := c.current(); dev != nil {
		c.rl.SetPrompt(dev.SerialNumber() + "> ")
	}
}

// Execute runs one command line and reports whether the user asked to quit.
func (c *Console) Execute(line string) bool {
	parts := strings.Fields(strings.TrimSpace(line))
	if len(parts) == 0 {
		return false
	}
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "help", "?":
		c.printHelp()
	case "list", "ls":
		c.cmdList()
	case "select", "sel":
		c.cmdSelect(args)
	case "get", "g":
		c.cmdGet(args)
	case "set", "s":
		c.cmdSet(args)
	case "dump":
		c.cmdDump(args)
	case "inform":
		c.cmdInform(args)
	case "diags":
		c.cmdDiags()
	case "result":
		c.cmdResult(args)
	case "status":
		c.cmdStatus()
	case "quit", "exit", "q":
		return true
	default:
		fmt.Fprintf(c.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	return false
}

func (c *Console) printHelp() {
	fmt.Fprintln(c.out, `
CWMP Device Commands:
  Devices:
    list                 - List simulated devices
    select <n|serial>    - Select the device the other commands act on
    status               - Show session state of the selected device

  Parameters:
    get <path>           - Read a parameter
    set <path> <value>   - Write a parameter locally (applied between sessions)
    dump [prefix]        - List parameters under prefix

  Sessions:
    inform [event]       - Request a session, e.g. "inform 6 CONNECTION REQUEST"

  Diagnostics:
    diags                - List supported diagnostics
    result <diag> <key>  - Select the result of the next run

  General:
    help                 - Show this help
    quit                 - Exit`)
}

func (c *Console) current() Device {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.selected < 0 || c.selected >= len(c.devices) {
		return nil
	}
	return c.devices[c.selected]
}

func (c *Console) device() (Device, bool) {
	dev := c.current()
	if dev == nil {
		fmt.Fprintln(c.out, "No device available")
		return nil, false
	}
	return dev, true
}

func (c *Console) cmdList() {
	c.mu.Lock()
	devices := append([]Device(nil), c.devices...)
	selected := c.selected
	c.mu.Unlock()

	for i, dev := range devices {
		marker := " "
		if i == selected {
			marker = "*"
		}
		crURL := dev.ConnectionRequestURL()
		if crURL == "" {
			crURL = "-"
		}
		fmt.Fprintf(c.out, "%s %3d  %-20s %-8s %s\n", marker, i+1, dev.SerialNumber(), dev.State(), crURL)
	}
}

func (c *Console) cmdSelect(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(c.out, "Usage: select <n|serial>")
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if n, err := strconv.Atoi(args[0]); err == nil {
		if n < 1 || n > len(c.devices) {
			fmt.Fprintf(c.out, "No device %d (have %d)\n", n, len(c.devices))
			return
		}
		c.selected = n - 1
		fmt.Fprintf(c.out, "Selected %s\n", c.devices[c.selected].SerialNumber())
		return
	}
	for i, dev := range c.devices {
		if dev.SerialNumber() == args[0] {
			c.selected = i
			fmt.Fprintf(c.out, "Selected %s\n", dev.SerialNumber())
			return
		}
	}
	fmt.Fprintf(c.out, "No device with serial %s\n", args[0])
}

func (c *Console) cmdGet(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(c.out, "Usage: get <path>")
		return
	}
	dev, ok := c.device()
	if !ok {
		return
	}
	rec, found := dev.Get(args[0])
	if !found {
		fmt.Fprintf(c.out, "Unknown path: %s\n", args[0])
		return
	}
	printRecord(c.out, args[0], rec)
}

func (c *Console) cmdSet(args []string) {
	if len(args) < 2 {
		fmt.Fprintln(c.out, "Usage: set <path> <value>")
		return
	}
	dev, ok := c.device()
	if !ok {
		return
	}
	value := strings.Join(args[1:], " ")
	if err := dev.SetLocal(args[0], value); err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	fmt.Fprintf(c.out, "%s <- %q (queued)\n", args[0], value)
}

func (c *Console) cmdDump(args []string) {
	dev, ok := c.device()
	if !ok {
		return
	}
	prefix := ""
	if len(args) > 0 {
		prefix = args[0]
	}

	type entry struct {
		path string
		rec  params.Record
	}
	var entries []entry
	total := 0
	dev.Do(func(store params.Store) {
		for _, p := range store.Paths() {
			if !strings.HasPrefix(p, prefix) {
				continue
			}
			total++
			if len(entries) < maxDumpLines {
				rec, _ := store.Get(p)
				entries = append(entries, entry{p, rec})
			}
		}
	})

	for _, e := range entries {
		printRecord(c.out, e.path, e.rec)
	}
	if total > len(entries) {
		fmt.Fprintf(c.out, "... %d more\n", total-len(entries))
	}
	if total == 0 {
		fmt.Fprintf(c.out, "No parameters under %q\n", prefix)
	}
}

func printRecord(w io.Writer, path string, rec params.Record) {
	access := "r "
	if rec.Writable {
		access = "rw"
	}
	if params.IsObject(path) {
		fmt.Fprintf(w, "%s %s\n", access, path)
		return
	}
	fmt.Fprintf(w, "%s %s = %q (%s)\n", access, path, rec.Value, rec.Type)
}

func (c *Console) cmdInform(args []string) {
	dev, ok := c.device()
	if !ok {
		return
	}
	event := strings.Join(args, " ")
	if err := dev.TriggerInform(event); err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	if event == "" {
		event = "default"
	}
	fmt.Fprintf(c.out, "Inform requested (%s)\n", event)
}

func (c *Console) cmdDiags() {
	dev, ok := c.device()
	if !ok {
		return
	}
	for _, name := range dev.Diagnostics() {
		fmt.Fprintf(c.out, "  %s\n", name)
	}
}

func (c *Console) cmdResult(args []string) {
	if len(args) != 2 {
		fmt.Fprintln(c.out, "Usage: result <diag> <key>")
		return
	}
	dev, ok := c.device()
	if !ok {
		return
	}
	if err := dev.SetResultForDiagnostic(args[0], args[1]); err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	fmt.Fprintf(c.out, "%s will complete with %s\n", args[0], args[1])
}

func (c *Console) cmdStatus() {
	dev, ok := c.device()
	if !ok {
		return
	}
	fmt.Fprintf(c.out, "Serial:     %s\n", dev.SerialNumber())
	fmt.Fprintf(c.out, "State:      %s\n", dev.State())
	crURL := dev.ConnectionRequestURL()
	if crURL == "" {
		crURL = "(disabled)"
	}
	fmt.Fprintf(c.out, "ConnReqURL: %s\n", crURL)
	var (
		interval string
		found    bool
	)
	dev.Do(func(store params.Store) {
		var rec params.Record
		_, rec, found = params.First(store,
			params.RootTR181+"ManagementServer.PeriodicInformInterval",
			params.RootTR098+"ManagementServer.PeriodicInformInterval")
		interval = rec.Value
	})
	if found {
		fmt.Fprintf(c.out, "Periodic:   %s\n", interval)
	}
}

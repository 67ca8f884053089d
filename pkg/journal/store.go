package journal

import (
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/cwmpsim/cwmpsim-go/pkg/diagnostics"
	"github.com/cwmpsim/cwmpsim-go/pkg/session"
)

// Store provides SQLite persistence for sessions, RPCs and diagnostics.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// Open opens or creates the journal at dbPath.
// Use ":memory:" for an in-memory database.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Each connection to ":memory:" is a separate database.
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		PRAGMA foreign_keys = ON;
		PRAGMA journal_mode = WAL;
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		device_id TEXT NOT NULL DEFAULT '',
		events TEXT NOT NULL DEFAULT '',
		opened_at DATETIME,
		closed_at DATETIME,
		error TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS rpcs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		direction TEXT NOT NULL,
		method TEXT NOT NULL,
		fault_code INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS diagnostics (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		device_id TEXT NOT NULL,
		name TEXT NOT NULL,
		event TEXT NOT NULL,
		state TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_rpcs_session_id ON rpcs(session_id);
	CREATE INDEX IF NOT EXISTS idx_sessions_opened_at ON sessions(opened_at);
	CREATE INDEX IF NOT EXISTS idx_diagnostics_device_id ON diagnostics(device_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// OpenSession records a session start.
func (s *Store) OpenSession(id, deviceID string, events []string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO sessions (id, device_id, events, opened_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			device_id = excluded.device_id,
			events = excluded.events,
			opened_at = excluded.opened_at
	`, id, deviceID, strings.Join(events, ","), at)
	return err
}

// CloseSession records a session end.
func (s *Store) CloseSession(id, deviceID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO sessions (id, device_id, closed_at)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET closed_at = excluded.closed_at
	`, id, deviceID, at)
	return err
}

// FailSession stores the error that aborted a session.
func (s *Store) FailSession(id, deviceID, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO sessions (id, device_id, error)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET error = excluded.error
	`, id, deviceID, errMsg)
	return err
}

// AddRPC records one exchanged message.
func (s *Store) AddRPC(rpc *RPC) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO rpcs (session_id, direction, method, fault_code, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, rpc.SessionID, rpc.Direction, rpc.Method, rpc.FaultCode, rpc.At)
	return err
}

// AddDiagnostic records one diagnostics scheduler event.
func (s *Store) AddDiagnostic(d *Diagnostic) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO diagnostics (device_id, name, event, state, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, d.DeviceID, d.Name, d.Event, d.State, d.At)
	return err
}

const sessionColumns = `
	SELECT s.id, s.device_id, s.events, s.opened_at, s.closed_at, s.error,
	       (SELECT COUNT(*) FROM rpcs r WHERE r.session_id = s.id),
	       (SELECT COUNT(*) FROM rpcs r WHERE r.session_id = s.id AND r.fault_code != 0)
	FROM sessions s`

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*Session, error) {
	var (
		sess             Session
		events           string
		openedAt, closed sql.NullTime
	)
	if err := row.Scan(&sess.ID, &sess.DeviceID, &events, &openedAt, &closed,
		&sess.Error, &sess.RPCCount, &sess.FaultCount); err != nil {
		return nil, err
	}
	if events != "" {
		sess.Events = strings.Split(events, ",")
	}
	if openedAt.Valid {
		sess.OpenedAt = &openedAt.Time
	}
	if closed.Valid {
		sess.ClosedAt = &closed.Time
	}
	return &sess, nil
}

// GetSession retrieves a session by ID. Returns nil, nil when absent.
func (s *Store) GetSession(id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, err := scanSession(s.db.QueryRow(sessionColumns+` WHERE s.id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return sess, err
}

// ListSessions returns sessions, most recent first. deviceID filters when
// non-empty.
func (s *Store) ListSessions(deviceID string, limit, offset int) ([]Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.Query(sessionColumns+`
		WHERE ? = '' OR s.device_id = ?
		ORDER BY s.opened_at DESC
		LIMIT ? OFFSET ?
	`, deviceID, deviceID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *sess)
	}
	return sessions, rows.Err()
}

// CountSessions returns the total number of sessions.
func (s *Store) CountSessions() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM sessions").Scan(&count)
	return count, err
}

// SessionRPCs returns the messages of a session in exchange order.
func (s *Store) SessionRPCs(sessionID string) ([]RPC, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT session_id, direction, method, fault_code, created_at
		FROM rpcs WHERE session_id = ? ORDER BY created_at, id
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rpcs []RPC
	for rows.Next() {
		var r RPC
		if err := rows.Scan(&r.SessionID, &r.Direction, &r.Method, &r.FaultCode, &r.At); err != nil {
			return nil, err
		}
		rpcs = append(rpcs, r)
	}
	return rpcs, rows.Err()
}

// Diagnostics returns the diagnostics events of a device, oldest first.
func (s *Store) Diagnostics(deviceID string) ([]Diagnostic, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT device_id, name, event, state, created_at
		FROM diagnostics WHERE device_id = ? ORDER BY created_at, id
	`, deviceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var diags []Diagnostic
	for rows.Next() {
		var d Diagnostic
		if err := rows.Scan(&d.DeviceID, &d.Name, &d.Event, &d.State, &d.At); err != nil {
			return nil, err
		}
		diags = append(diags, d)
	}
	return diags, rows.Err()
}

// SessionHandler returns an engine event handler that journals sessions.
// Write errors are passed to onError when it is non-nil.
func (s *Store) SessionHandler(onError func(error)) session.EventHandler {
	return func(ev session.Event) {
		var err error
		switch ev.Type {
		case session.EventSessionOpened:
			err = s.OpenSession(ev.SessionID, ev.DeviceID, ev.Events, ev.Time)
		case session.EventSessionClosed:
			err = s.CloseSession(ev.SessionID, ev.DeviceID, ev.Time)
		case session.EventMessageSent, session.EventMessageReceived:
			dir := DirectionSent
			if ev.Type == session.EventMessageReceived {
				dir = DirectionReceived
			}
			err = s.AddRPC(&RPC{
				SessionID: ev.SessionID,
				Direction: dir,
				Method:    ev.Method,
				FaultCode: ev.FaultCode,
				At:        ev.Time,
			})
		case session.EventError:
			if ev.SessionID != "" && ev.Error != nil {
				err = s.FailSession(ev.SessionID, ev.DeviceID, ev.Error.Error())
			}
		}
		if err != nil && onError != nil {
			onError(fmt.Errorf("journal %s: %w", ev.Type, err))
		}
	}
}

// DiagnosticHandler returns a scheduler event handler journaling events
// of deviceID.
func (s *Store) DiagnosticHandler(deviceID string, onError func(error)) diagnostics.EventHandler {
	return func(ev diagnostics.Event) {
		err := s.AddDiagnostic(&Diagnostic{
			DeviceID: deviceID,
			Name:     ev.Name,
			Event:    ev.Type.String(),
			State:    ev.State,
			At:       time.Now(),
		})
		if err != nil && onError != nil {
			onError(fmt.Errorf("journal diagnostic: %w", err))
		}
	}
}

package journal

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
)

// API serves the journal as JSON over HTTP.
type API struct {
	store   *Store
	version string
}

// SessionListResponse is the body of GET /api/v1/sessions.
type SessionListResponse struct {
	Sessions []Session `json:"sessions"`
	Total    int       `json:"total"`
}

// SessionDetailResponse is the body of GET /api/v1/sessions/{id}.
type SessionDetailResponse struct {
	Session *Session `json:"session"`
	RPCs    []RPC    `json:"rpcs"`
}

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// NewAPI creates an API over store.
func NewAPI(store *Store, version string) *API {
	return &API{store: store, version: version}
}

// Register mounts the API routes on mux.
func (a *API) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/health", a.HandleHealth)
	mux.HandleFunc("/api/v1/sessions", a.HandleSessions)
	mux.HandleFunc("/api/v1/sessions/", a.HandleSessionByID)
	mux.HandleFunc("/api/v1/diagnostics", a.HandleDiagnostics)
}

// HandleHealth handles GET /api/v1/health.
func (a *API) HandleHealth(w http.ResponseWriter, req *http.Request) {
	writeJSONResponse(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": a.version,
	})
}

// HandleSessions handles GET /api/v1/sessions?device=&limit=&offset=.
func (a *API) HandleSessions(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := req.URL.Query()
	limit, err := queryInt(q.Get("limit"), 100)
	if err != nil || limit <= 0 {
		writeJSONError(w, http.StatusBadRequest, "Invalid limit", q.Get("limit"))
		return
	}
	offset, err := queryInt(q.Get("offset"), 0)
	if err != nil || offset < 0 {
		writeJSONError(w, http.StatusBadRequest, "Invalid offset", q.Get("offset"))
		return
	}

	sessions, err := a.store.ListSessions(q.Get("device"), limit, offset)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "Failed to list sessions", err.Error())
		return
	}
	total, err := a.store.CountSessions()
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "Failed to count sessions", err.Error())
		return
	}
	if sessions == nil {
		sessions = []Session{}
	}

	writeJSONResponse(w, http.StatusOK, SessionListResponse{Sessions: sessions, Total: total})
}

// HandleSessionByID handles GET /api/v1/sessions/{id}.
func (a *API) HandleSessionByID(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := strings.TrimPrefix(req.URL.Path, "/api/v1/sessions/")
	if id == "" || strings.Contains(id, "/") {
		writeJSONError(w, http.StatusNotFound, "Session not found", id)
		return
	}

	sess, err := a.store.GetSession(id)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "Failed to get session", err.Error())
		return
	}
	if sess == nil {
		writeJSONError(w, http.StatusNotFound, "Session not found", id)
		return
	}

	rpcs, err := a.store.SessionRPCs(id)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "Failed to get rpcs", err.Error())
		return
	}
	if rpcs == nil {
		rpcs = []RPC{}
	}

	writeJSONResponse(w, http.StatusOK, SessionDetailResponse{Session: sess, RPCs: rpcs})
}

// HandleDiagnostics handles GET /api/v1/diagnostics?device=.
func (a *API) HandleDiagnostics(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	device := req.URL.Query().Get("device")
	if device == "" {
		writeJSONError(w, http.StatusBadRequest, "device is required", "")
		return
	}

	diags, err := a.store.Diagnostics(device)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "Failed to list diagnostics", err.Error())
		return
	}
	if diags == nil {
		diags = []Diagnostic{}
	}
	writeJSONResponse(w, http.StatusOK, diags)
}

func queryInt(s string, fallback int) (int, error) {
	if s == "" {
		return fallback, nil
	}
	return strconv.Atoi(s)
}

func writeJSONResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeJSONError(w http.ResponseWriter, status int, message, details string) {
	writeJSONResponse(w, status, ErrorResponse{Error: message, Details: details})
}

// Package acstest provides a scripted ACS for tests.
//
// The server answers Inform and TransferComplete, hands out queued ACS
// requests whenever the CPE yields the turn, and closes the session with an
// empty reply when the queue is empty. It records everything it receives.
package acstest

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"

	"github.com/cwmpsim/cwmpsim-go/pkg/cwmp"
)

// SessionCookie is the cookie set on every Inform reply.
const SessionCookie = "acs-session"

// Request is one POST the server received.
type Request struct {
	// Session counts Informs, starting at 1.
	Session  int
	Envelope *cwmp.Envelope
	Body     []byte
	Cookie   string
	User     string
	Time     time.Time
}

// Raw is an ACS request with no arguments, for methods the codec has no
// struct for.
type Raw struct {
	Name string `xml:"-"`
}

// MethodName implements cwmp.Message.
func (r *Raw) MethodName() string { return r.Name }

// Server is a scripted ACS.
type Server struct {
	*httptest.Server

	mu        sync.Mutex
	onInform  func(session int, inform *cwmp.Inform)
	requests  []Request
	informs   []*cwmp.Inform
	script    []cwmp.Message
	sessions  int
	active    int
	maxActive int
	failNext  int
}

// New starts a server. Close it with Close.
func New() *Server {
	s := &Server{}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// OnInform sets a hook run after an Inform is recorded, before it is
// answered.
func (s *Server) OnInform(fn func(session int, inform *cwmp.Inform)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onInform = fn
}

// Enqueue adds ACS requests, handed out in order when the CPE yields.
func (s *Server) Enqueue(msgs ...cwmp.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.script = append(s.script, msgs...)
}

// FailNext makes the next n POSTs fail with status 500.
func (s *Server) FailNext(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = n
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	env, err := cwmp.Decode(body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	user, _, _ := r.BasicAuth()
	cookie := ""
	if c, err := r.Cookie(SessionCookie); err == nil {
		cookie = c.Value
	}

	s.mu.Lock()
	if s.failNext > 0 {
		s.failNext--
		s.mu.Unlock()
		http.Error(w, "scripted failure", http.StatusInternalServerError)
		return
	}

	var inform *cwmp.Inform
	if env != nil && env.Method == cwmp.MethodInform {
		inform = &cwmp.Inform{}
		if err := env.DecodeBody(inform); err != nil {
			s.mu.Unlock()
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.sessions++
		s.active++
		if s.active > s.maxActive {
			s.maxActive = s.active
		}
		s.informs = append(s.informs, inform)
	}
	session := s.sessions
	s.requests = append(s.requests, Request{
		Session: session, Envelope: env, Body: body, Cookie: cookie, User: user, Time: time.Now(),
	})
	hook := s.onInform
	s.mu.Unlock()

	if inform != nil {
		if hook != nil {
			hook(session, inform)
		}
		http.SetCookie(w, &http.Cookie{Name: SessionCookie, Value: "s" + strconv.Itoa(session)})
		s.reply(w, env.ID, &cwmp.InformResponse{MaxEnvelopes: 1})
		return
	}

	if env != nil && env.Method == cwmp.MethodTransferComplete {
		s.reply(w, env.ID, &cwmp.TransferCompleteResponse{})
		return
	}

	// Empty POST or a response: next scripted request, or close.
	s.mu.Lock()
	var next cwmp.Message
	if len(s.script) > 0 {
		next = s.script[0]
		s.script = s.script[1:]
	} else {
		s.active--
	}
	s.mu.Unlock()

	if next == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.reply(w, cwmp.NewID(), next)
}

func (s *Server) reply(w http.ResponseWriter, id string, msg cwmp.Message) {
	data, err := cwmp.Encode(id, msg)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", `text/xml; charset="utf-8"`)
	_, _ = w.Write(data)
}

// Informs returns the received Informs in order.
func (s *Server) Informs() []*cwmp.Inform {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*cwmp.Inform(nil), s.informs...)
}

// Requests returns every received POST in order.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// Methods returns the method names received, "" for empty POSTs.
func (s *Server) Methods() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.requests))
	for i, r := range s.requests {
		if r.Envelope != nil {
			out[i] = r.Envelope.Method
		}
	}
	return out
}

// Find returns the first received request with method, or nil.
func (s *Server) Find(method string) *Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.requests {
		if env := s.requests[i].Envelope; env != nil && env.Method == method {
			r := s.requests[i]
			return &r
		}
	}
	return nil
}

// Sessions returns how many sessions were opened.
func (s *Server) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions
}

// Idle reports whether no session is open.
func (s *Server) Idle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active == 0
}

// MaxConcurrent returns the highest number of sessions open at once.
func (s *Server) MaxConcurrent() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxActive
}

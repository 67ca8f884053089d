package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"
)

// ConnectionRequestServer accepts ACS connection requests. Every request is
// answered 200 and reported to the callback.
type ConnectionRequestServer struct {
	addr      string
	onRequest func(remoteAddr string)
	logger    *slog.Logger

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
	url      string
}

// NewConnectionRequestServer creates a server listening on addr.
func NewConnectionRequestServer(addr string, onRequest func(remoteAddr string), logger *slog.Logger) *ConnectionRequestServer {
	return &ConnectionRequestServer{addr: addr, onRequest: onRequest, logger: logger}
}

// Start listens and serves in the background. It returns the URL to
// publish as ManagementServer.ConnectionRequestURL.
func (s *ConnectionRequestServer) Start() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return s.url, nil
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return "", fmt.Errorf("connection request listener: %w", err)
	}

	s.listener = ln
	s.url = "http://" + ln.Addr().String() + "/"
	s.server = &http.Server{
		Handler:           http.HandlerFunc(s.handle),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.debugLog("connection request server stopped", "error", err)
		}
	}()

	s.debugLog("listening for connection requests", "url", s.url)
	return s.url, nil
}

func (s *ConnectionRequestServer) handle(w http.ResponseWriter, r *http.Request) {
	_, _ = io.Copy(io.Discard, io.LimitReader(r.Body, 1<<16))
	w.WriteHeader(http.StatusOK)
	s.debugLog("connection request", "remote", r.RemoteAddr)
	if s.onRequest != nil {
		s.onRequest(r.RemoteAddr)
	}
}

// URL returns the published URL, "" before Start.
func (s *ConnectionRequestServer) URL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.url
}

// Close stops the listener.
func (s *ConnectionRequestServer) Close() error {
	s.mu.Lock()
	srv := s.server
	s.server = nil
	s.listener = nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

func (s *ConnectionRequestServer) debugLog(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}

// ListenAddrFor returns the local IPv4 address used to reach the ACS with
// port 0. It falls back to the loopback address.
func ListenAddrFor(acsURL string) string {
	const fallback = "127.0.0.1:0"

	u, err := url.Parse(acsURL)
	if err != nil || u.Hostname() == "" {
		return fallback
	}
	port := u.Port()
	if port == "" {
		port = "80"
		if u.Scheme == "https" {
			port = "443"
		}
	}

	// A UDP dial only selects a route; nothing is sent.
	conn, err := net.Dial("udp4", net.JoinHostPort(u.Hostname(), port))
	if err != nil {
		return fallback
	}
	defer conn.Close()

	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return fallback
	}
	return net.JoinHostPort(addr.IP.String(), "0")
}

package session

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"sync"
	"time"

	"github.com/cwmpsim/cwmpsim-go/pkg/params"
)

// maxResponseBody bounds how much of an ACS reply is read.
const maxResponseBody = 16 << 20

// Transport posts one SOAP body to the ACS and returns the reply body.
type Transport interface {
	Post(ctx context.Context, body []byte) ([]byte, error)
}

// resetter is implemented by transports holding connections.
type resetter interface {
	Reset()
}

// Credentials returns the basic-auth user and password for the next POST.
type Credentials func() (username, password string)

// StoreCredentials reads ManagementServer.Username and Password from the
// device model, TR-181 first.
func StoreCredentials(tx *params.Tx) Credentials {
	return func() (string, string) {
		var user, pass string
		tx.Do(func(s params.Store) {
			for _, root := range []string{params.RootTR181, params.RootTR098} {
				if rec, ok := s.Get(root + "ManagementServer.Username"); ok {
					user = rec.Value
					pass = params.Value(s, root+"ManagementServer.Password", "")
					return
				}
			}
		})
		return user, pass
	}
}

// HTTPTransport posts to the ACS over a single keep-alive connection,
// echoing cookies and sending basic auth on every request.
type HTTPTransport struct {
	url         string
	credentials Credentials
	maxBody     int64

	mu        sync.Mutex
	transport *http.Transport
	client    *http.Client
}

// NewHTTPTransport creates a transport for acsURL.
func NewHTTPTransport(acsURL string, timeout time.Duration, creds Credentials) (*HTTPTransport, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("cookie jar: %w", err)
	}
	tr := newKeepAlive()
	return &HTTPTransport{
		url:         acsURL,
		credentials: creds,
		maxBody:     maxResponseBody,
		transport:   tr,
		client:      &http.Client{Transport: tr, Jar: jar, Timeout: timeout},
	}, nil
}

func newKeepAlive() *http.Transport {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.MaxConnsPerHost = 1
	tr.MaxIdleConnsPerHost = 1
	return tr
}

// Post sends body, which may be empty.
func (t *HTTPTransport) Post(ctx context.Context, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", `text/xml; charset="utf-8"`)
	if t.credentials != nil {
		user, pass := t.credentials()
		req.SetBasicAuth(user, pass)
	}

	t.mu.Lock()
	client := t.client
	t.mu.Unlock()

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, t.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("read ACS reply: %w", err)
	}
	if int64(len(data)) > t.maxBody {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrReplyTooLarge, t.maxBody)
	}
	if resp.StatusCode/100 != 2 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: data}
	}
	return data, nil
}

// Reset drops the pooled connection. Cookies survive.
func (t *HTTPTransport) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.transport.CloseIdleConnections()
	tr := newKeepAlive()
	t.transport = tr
	t.client = &http.Client{Transport: tr, Jar: t.client.Jar, Timeout: t.client.Timeout}
}

var (
	_ Transport = (*HTTPTransport)(nil)
	_ resetter  = (*HTTPTransport)(nil)
)

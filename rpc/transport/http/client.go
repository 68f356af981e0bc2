package http

import (
	"bytes"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/mclock/rpc/common"
	"github.com/ValentinKolb/mclock/rpc/transport"
	"github.com/cockroachdb/errors"
)

// NewHttpClientTransport creates a client transport that posts every
// request to the RPC route of one of the configured servers
func NewHttpClientTransport() transport.IRPCClientTransport {
	return &httpClientTransport{}
}

type httpClientTransport struct {
	targets  []string
	client   *http.Client
	next     atomic.Uint32
	attempts int
}

// rpcURL returns the RPC route of an endpoint. Endpoints without a scheme
// are reached over plain http.
func rpcURL(endpoint string) (string, error) {
	if !strings.Contains(endpoint, "://") {
		endpoint = "http://" + endpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", errors.Wrapf(err, "invalid endpoint %q", endpoint)
	}
	if u.Host == "" {
		return "", errors.Newf("invalid endpoint %q: missing host", endpoint)
	}
	return u.JoinPath(RPCPath).String(), nil
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCClientTransport)
// --------------------------------------------------------------------------

func (t *httpClientTransport) Connect(config common.ClientConfig) error {
	if len(config.Transport.Endpoints) == 0 {
		return errors.New("no endpoints provided")
	}

	targets := make([]string, len(config.Transport.Endpoints))
	for i, endpoint := range config.Transport.Endpoints {
		target, err := rpcURL(endpoint)
		if err != nil {
			return err
		}
		targets[i] = target
	}

	t.targets = targets
	t.attempts = max(config.Transport.RetryCount, 1)
	t.client = &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
		Timeout: time.Duration(config.TimeoutSecond) * time.Second,
	}
	return nil
}

func (t *httpClientTransport) Send(req []byte) ([]byte, error) {
	if t.client == nil {
		return nil, errors.New("http transport not initialized")
	}

	var lastErr error
	for i := 0; i < t.attempts; i++ {
		// every attempt goes to the next server
		target := t.targets[t.next.Add(1)%uint32(len(t.targets))]

		resp, retry, err := t.post(target, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !retry {
			break
		}
		Logger.Debugf("attempt %d/%d to %s failed: %v", i+1, t.attempts, target, err)
	}
	return nil, lastErr
}

func (t *httpClientTransport) Close() error {
	if t.client != nil {
		t.client.CloseIdleConnections()
	}
	t.client = nil
	t.targets = nil
	return nil
}

// post sends one request. Network failures and 5xx answers may succeed on
// another server, every other status is final.
func (t *httpClientTransport) post(target string, req []byte) (body []byte, retry bool, err error) {
	resp, err := t.client.Post(target, "application/octet-stream", bytes.NewReader(req))
	if err != nil {
		return nil, true, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			Logger.Errorf("Failed to close response body: %v", err)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode >= http.StatusInternalServerError, errors.Newf("http error: %s", resp.Status)
	}

	body, err = io.ReadAll(io.LimitReader(resp.Body, maxBodySize+1))
	if err != nil {
		return nil, true, err
	}
	if len(body) > maxBodySize {
		return nil, false, errors.Newf("response exceeds %d bytes", maxBodySize)
	}
	return body, false, nil
}

package http

import (
	"net/http"
	"sync/atomic"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ValentinKolb/mclock/rpc/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHttpTransport(t *testing.T) {
	server := NewHttpServerTransport()
	server.RegisterHandler(func(req []byte) []byte {
		return []byte(strings.ToUpper(string(req)))
	})
	server.Handle("GET /ping", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("pong"))
	}))

	ts := httptest.NewServer(server.(http.Handler))
	defer ts.Close()

	client := NewHttpClientTransport()
	require.NoError(t, client.Connect(common.ClientConfig{
		TimeoutSecond: 5,
		Transport:     common.ClientTransportConfig{Endpoints: []string{ts.URL}, RetryCount: 2},
	}))
	defer client.Close()

	resp, err := client.Send([]byte("lock"))
	require.NoError(t, err)
	assert.Equal(t, "LOCK", string(resp))

	// additional handlers share the server
	r, err := http.Get(ts.URL + "/ping")
	require.NoError(t, err)
	defer r.Body.Close()
	assert.Equal(t, http.StatusOK, r.StatusCode)

	// the rpc endpoint only accepts POST
	r2, err := http.Get(ts.URL + RPCPath)
	require.NoError(t, err)
	defer r2.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, r2.StatusCode)
}

func TestHttpClientErrors(t *testing.T) {
	client := NewHttpClientTransport()

	_, err := client.Send([]byte("x"))
	assert.Error(t, err, "send before connect")

	assert.Error(t, client.Connect(common.ClientConfig{}))

	// a server without the rpc route answers 404
	ts := httptest.NewServer(http.NotFoundHandler())
	defer ts.Close()
	require.NoError(t, client.Connect(common.ClientConfig{
		TimeoutSecond: 5,
		Transport:     common.ClientTransportConfig{Endpoints: []string{strings.TrimPrefix(ts.URL, "http://")}},
	}))
	_, err = client.Send([]byte("x"))
	assert.Error(t, err)
}

func TestRPCURL(t *testing.T) {
	for endpoint, want := range map[string]string{
		"localhost:8080":         "http://localhost:8080/rpc",
		"http://10.0.0.1:80":     "http://10.0.0.1:80/rpc",
		"https://bmc.local/base": "https://bmc.local/base/rpc",
	} {
		got, err := rpcURL(endpoint)
		require.NoError(t, err, endpoint)
		assert.Equal(t, want, got)
	}

	_, err := rpcURL("http://")
	assert.Error(t, err)
}

func TestHttpClientRetries(t *testing.T) {
	var calls atomic.Int32
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer failing.Close()

	server := NewHttpServerTransport()
	server.RegisterHandler(func(req []byte) []byte { return req })
	healthy := httptest.NewServer(server.(http.Handler))
	defer healthy.Close()

	client := NewHttpClientTransport()
	require.NoError(t, client.Connect(common.ClientConfig{
		TimeoutSecond: 5,
		Transport: common.ClientTransportConfig{
			Endpoints:  []string{failing.URL, healthy.URL},
			RetryCount: 2,
		},
	}))
	defer client.Close()

	// a 5xx answer moves on to the next server
	for i := 0; i < 4; i++ {
		resp, err := client.Send([]byte("ping"))
		require.NoError(t, err)
		assert.Equal(t, "ping", string(resp))
	}
	assert.Equal(t, int32(3), calls.Load())

	// 4xx answers are final
	var rejected atomic.Int32
	badRequest := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		rejected.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer badRequest.Close()

	require.NoError(t, client.Connect(common.ClientConfig{
		TimeoutSecond: 5,
		Transport:     common.ClientTransportConfig{Endpoints: []string{badRequest.URL}, RetryCount: 3},
	}))
	_, err := client.Send([]byte("ping"))
	assert.Error(t, err)
	assert.Equal(t, int32(1), rejected.Load())
}

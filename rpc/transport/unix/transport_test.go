package unix

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ValentinKolb/mclock/rpc/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnixTransport(t *testing.T) {
	dir, err := os.MkdirTemp("", "mclock")
	require.NoError(t, err)
	defer os.RemoveAll(dir)
	sock := filepath.Join(dir, "test.sock")

	// echo server that prefixes every request
	server := NewUnixServerTransport(16, 4)
	server.RegisterHandler(func(req []byte) []byte {
		return append([]byte("echo:"), req...)
	})

	done := make(chan error, 1)
	go func() {
		done <- server.Listen(common.ServerConfig{
			TimeoutSecond: 5,
			Transport:     common.ServerTransportConfig{Endpoint: sock},
		})
	}()

	client := NewUnixClientTransport()
	require.Eventually(t, func() bool {
		return client.Connect(common.ClientConfig{
			TimeoutSecond: 5,
			Transport: common.ClientTransportConfig{
				Endpoints:              []string{sock},
				ConnectionsPerEndpoint: 2,
				RetryCount:             2,
			},
		}) == nil
	}, 5*time.Second, 20*time.Millisecond)

	// concurrent requests are correlated by request id
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := []byte(fmt.Sprintf("request-%d", i))
			resp, err := client.Send(req)
			if assert.NoError(t, err) {
				assert.True(t, bytes.Equal(append([]byte("echo:"), req...), resp), "got %q", resp)
			}
		}(i)
	}
	wg.Wait()

	require.NoError(t, client.Close())
	require.NoError(t, server.Close())

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Listen did not return after Close")
	}
}

func TestUnixClientNoEndpoint(t *testing.T) {
	client := NewUnixClientTransport()
	assert.Error(t, client.Connect(common.ClientConfig{}))
	assert.Error(t, client.Connect(common.ClientConfig{
		Transport: common.ClientTransportConfig{Endpoints: []string{"/nonexistent/mclock.sock"}},
	}))
}

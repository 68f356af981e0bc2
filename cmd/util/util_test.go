package util

import (
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapString(t *testing.T) {
	text := strings.Repeat("lorem ipsum ", 20)
	for _, line := range strings.Split(WrapString(text), "\n") {
		assert.LessOrEqual(t, len(line), Wrap)
		assert.NotEmpty(t, line)
	}
	assert.Equal(t, "short text", WrapString("  short   text "))
	assert.Equal(t, "", WrapString(""))
}

func TestLookup(t *testing.T) {
	t.Cleanup(viper.Reset)

	viper.Set("serializer", "binary")
	s, err := GetSerializer()
	require.NoError(t, err)
	assert.Equal(t, "binary", s.Name())

	viper.Set("serializer", "xml")
	_, err = GetSerializer()
	assert.ErrorContains(t, err, "valid: binary, gob, json")

	viper.Set("transport", "tcp")
	_, err = GetTransport()
	require.NoError(t, err)
	_, err = GetServerTransport()
	require.NoError(t, err)

	viper.Set("transport", "udp")
	_, err = GetTransport()
	assert.Error(t, err)
}

func TestGetClientConfig(t *testing.T) {
	t.Cleanup(viper.Reset)

	viper.Set("transport-endpoints", "a:1, b:2")
	viper.Set("transport-read-buffer", 2)
	viper.Set("timeout", 3)

	config := GetClientConfig()
	assert.Equal(t, []string{"a:1", "b:2"}, config.Transport.Endpoints)
	assert.Equal(t, 2048, config.Transport.ReadBufferSize)
	assert.Equal(t, 3, config.TimeoutSecond)
}

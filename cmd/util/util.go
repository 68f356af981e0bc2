package util

import (
	"fmt"
	"slices"
	"strings"

	"github.com/ValentinKolb/mclock/rpc/common"
	"github.com/ValentinKolb/mclock/rpc/serializer"
	"github.com/ValentinKolb/mclock/rpc/transport"
	"github.com/ValentinKolb/mclock/rpc/transport/http"
	"github.com/ValentinKolb/mclock/rpc/transport/tcp"
	"github.com/ValentinKolb/mclock/rpc/transport/unix"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// EnvPrefix is the prefix of all environment variables (e.g. MCLOCK_TIMEOUT)
	EnvPrefix = "mclock"

	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50
)

var (
	serializers = map[string]func() serializer.IRPCSerializer{
		"json":   serializer.NewJSONSerializer,
		"gob":    serializer.NewGOBSerializer,
		"binary": serializer.NewBinarySerializer,
	}
	serverTransports = map[string]func() transport.IRPCServerTransport{
		"http": func() transport.IRPCServerTransport { return http.NewHttpServerTransport() },
		"tcp":  tcp.NewTCPDefaultServerTransport,
		"unix": unix.NewUnixDefaultServerTransport,
	}
	clientTransports = map[string]func() transport.IRPCClientTransport{
		"http": http.NewHttpClientTransport,
		"tcp":  tcp.NewTCPClientTransport,
		"unix": unix.NewUnixClientTransport,
	}
)

// WrapString wraps a help text at Wrap characters
func WrapString(text string) string {
	var lines []string
	line := ""
	for _, word := range strings.Fields(text) {
		switch {
		case line == "":
			line = word
		case len(line)+1+len(word) > Wrap:
			lines = append(lines, line)
			line = word
		default:
			line += " " + word
		}
	}
	if line != "" {
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

// SetupRPCClientFlags adds the flags needed to reach a lock server to a command
func SetupRPCClientFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.Int("timeout", 10, WrapString("The timeout in seconds of the client"))
	flags.String("transport-endpoints", "http://localhost:8080", WrapString("The address of the mclock server. For transports that support load balancing, multiple endpoints can be specified as a comma-separated list"))
	flags.Int("transport-conn-per-endpoint", 1, WrapString("Simultaneous connections per endpoint (ignored for http)"))
	flags.Int("transport-retries", 3, WrapString("How many times to try a request before giving up"))
	flags.Int("transport-write-buffer", 512, WrapString("The size of the socket write buffer (in KB, ignored for http)"))
	flags.Int("transport-read-buffer", 512, WrapString("The size of the socket read buffer (in KB, ignored for http)"))
	flags.Bool("transport-tcp-nodelay", true, WrapString("Whether to enable TCP_NODELAY (only for tcp)"))
	flags.Int("transport-tcp-keepalive", 0, WrapString("The keepalive interval (in seconds, only for tcp)"))
	flags.Int("transport-tcp-linger", -1, WrapString("The linger time (in seconds, -1 keeps the os default, only for tcp)"))
}

// InitConfig loads .env files and binds environment variables to viper
func InitConfig() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}

// GetClientConfig reads the client configuration from viper
func GetClientConfig() *common.ClientConfig {
	endpoints := strings.Split(viper.GetString("transport-endpoints"), ",")
	for i := range endpoints {
		endpoints[i] = strings.TrimSpace(endpoints[i])
	}

	return &common.ClientConfig{
		TimeoutSecond: viper.GetInt("timeout"),
		Transport: common.ClientTransportConfig{
			Endpoints:              endpoints,
			RetryCount:             viper.GetInt("transport-retries"),
			ConnectionsPerEndpoint: viper.GetInt("transport-conn-per-endpoint"),
			SocketConf: common.SocketConf{
				WriteBufferSize: viper.GetInt("transport-write-buffer") * 1024,
				ReadBufferSize:  viper.GetInt("transport-read-buffer") * 1024,
			},
			TCPConf: common.TCPConf{
				TCPNoDelay:      viper.GetBool("transport-tcp-nodelay"),
				TCPKeepAliveSec: viper.GetInt("transport-tcp-keepalive"),
				TCPLingerSec:    viper.GetInt("transport-tcp-linger"),
			},
		},
	}
}

// GetSerializer creates the serializer selected by the serializer flag
func GetSerializer() (serializer.IRPCSerializer, error) {
	return lookup("serializer", serializers)
}

// GetServerTransport creates the server transport selected by the transport flag
func GetServerTransport() (transport.IRPCServerTransport, error) {
	return lookup("transport", serverTransports)
}

// GetTransport creates the client transport selected by the transport flag
func GetTransport() (transport.IRPCClientTransport, error) {
	return lookup("transport", clientTransports)
}

// lookup calls the constructor registered for the value of key
func lookup[T any](key string, constructors map[string]func() T) (T, error) {
	name := viper.GetString(key)
	if newT, ok := constructors[name]; ok {
		return newT(), nil
	}

	var zero T
	valid := make([]string, 0, len(constructors))
	for n := range constructors {
		valid = append(valid, n)
	}
	slices.Sort(valid)
	return zero, fmt.Errorf("invalid %s %q (valid: %s)", key, name, strings.Join(valid, ", "))
}

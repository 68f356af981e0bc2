package common

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// --------------------------------------------------------------------------
// Socket configuration (shared by the tcp and unix transports)
// --------------------------------------------------------------------------

// SocketConf holds the buffer sizes applied to stream sockets (0 = os default)
type SocketConf struct {
	WriteBufferSize int
	ReadBufferSize  int
}

// TCPConf holds the options only applied to tcp connections
type TCPConf struct {
	TCPNoDelay      bool
	TCPKeepAliveSec int
	TCPLingerSec    int
}

// --------------------------------------------------------------------------
// RPC server configuration struct
// --------------------------------------------------------------------------

// ServerTransportConfig configures the listener of the RPC server
type ServerTransportConfig struct {
	// Endpoint is the address (tcp, http) or socket path (unix) to listen on
	Endpoint string
	SocketConf
	TCPConf
}

// ServerConfig holds all configuration parameters of the lock server.
type ServerConfig struct {
	// Lock manager settings
	LockFile        string // "" keeps the lock table in memory only
	CaseInsensitive bool
	ByteOrder       string // "little" or "big"

	// Sessions idle longer than this lose their locks (0 = never)
	SessionTimeoutSecond int64

	// RPC settings
	TimeoutSecond int64
	Transport     ServerTransportConfig

	// RESTEndpoint serves the REST lock service if the RPC transport is not http
	RESTEndpoint string

	// Logging configuration
	LogLevel string
}

// ResourceByteOrder returns the byte order used to split resource ids into segments
func (c *ServerConfig) ResourceByteOrder() (binary.ByteOrder, error) {
	switch strings.ToLower(c.ByteOrder) {
	case "", "little":
		return binary.LittleEndian, nil
	case "big":
		return binary.BigEndian, nil
	default:
		return nil, fmt.Errorf("invalid resource byte order %q (expected little or big)", c.ByteOrder)
	}
}

// SessionTimeout returns the session timeout as a duration
func (c *ServerConfig) SessionTimeout() time.Duration {
	return time.Duration(c.SessionTimeoutSecond) * time.Second
}

// String returns a formatted string representation of the configuration
func (c *ServerConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	// RPC settings
	addSection("RPC Server")
	addField("Endpoint", c.Transport.Endpoint)
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	if c.RESTEndpoint != "" {
		addField("REST Endpoint", c.RESTEndpoint)
	}

	// Lock manager
	addSection("Lock Manager")
	lockFile := c.LockFile
	if lockFile == "" {
		lockFile = "(in memory)"
	}
	addField("Lock File", lockFile)
	addField("Case Insensitive", strconv.FormatBool(c.CaseInsensitive))
	byteOrder := c.ByteOrder
	if byteOrder == "" {
		byteOrder = "little"
	}
	addField("Resource Byte Order", byteOrder)
	if c.SessionTimeoutSecond > 0 {
		addField("Session Timeout", fmt.Sprintf("%d sec", c.SessionTimeoutSecond))
	} else {
		addField("Session Timeout", "disabled")
	}

	// Logging configuration
	addSection("Logging")
	addField("Log Level", c.LogLevel)

	return sb.String()
}

// --------------------------------------------------------------------------
// RPC client configuration struct
// --------------------------------------------------------------------------

// ClientTransportConfig configures how a client reaches the server
type ClientTransportConfig struct {
	Endpoints              []string
	RetryCount             int
	ConnectionsPerEndpoint int
	SocketConf
	TCPConf
}

type ClientConfig struct {
	TimeoutSecond int
	Transport     ClientTransportConfig
}

// String returns a formatted string representation of the client configuration
func (c *ClientConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	// General Client Settings
	addSection("Client Configuration")
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	addField("Retry Count", strconv.Itoa(c.Transport.RetryCount))
	addField("Connections Per Endpoint", strconv.Itoa(int(math.Max(1, float64(c.Transport.ConnectionsPerEndpoint)))))

	// Endpoints
	addSection("Endpoints")
	for i, endpoint := range c.Transport.Endpoints {
		addField(strconv.Itoa(i), endpoint)
	}

	return sb.String()
}

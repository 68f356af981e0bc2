package base

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/ValentinKolb/mclock/rpc/common"
	"github.com/ValentinKolb/mclock/rpc/transport"
	"github.com/VictoriaMetrics/metrics"
	"github.com/puzpuzpuz/xsync/v3"
)

// IServerConnector defines the interface for transport-specific server operations
type IServerConnector interface {
	// Listen creates the listener of the transport
	Listen(config common.ServerConfig) (net.Listener, error)

	// GetName returns the name of the transport type (e.g., "unix", "tcp")
	GetName() string

	// UpgradeConnection applies protocol-specific settings to an accepted connection
	UpgradeConnection(conn net.Conn, config common.ServerConfig) error
}

// serverTransport accepts framed request streams. Requests of one
// connection are processed by up to maxWorkersPerConn goroutines, the
// answers carry the request id and may be written out of order.
type serverTransport struct {
	connector         IServerConnector
	handler           transport.ServerHandleFunc
	config            common.ServerConfig
	buffers           sync.Pool
	maxWorkersPerConn int

	mu       sync.Mutex
	listener net.Listener
	closed   bool
	conns    *xsync.MapOf[net.Conn, struct{}]

	requests *metrics.Counter
	failures *metrics.Counter
}

// serverConn is the state of one accepted connection
type serverConn struct {
	parent  *serverTransport
	conn    net.Conn
	timeout time.Duration

	writeMu sync.Mutex
	slots   chan struct{} // counting semaphore for the workers
	workers sync.WaitGroup
}

// NewBaseServerTransport creates a server transport for the given connector.
// bufferSize is the size of the pooled read buffers (larger frames get a
// dedicated buffer), maxWorkersPerConn bounds the concurrent requests of a
// single connection.
func NewBaseServerTransport(connector IServerConnector, bufferSize int, maxWorkersPerConn int) transport.IRPCServerTransport {
	bufferSize = max(bufferSize, headerSize)
	name := connector.GetName()

	return &serverTransport{
		connector:         connector,
		maxWorkersPerConn: max(maxWorkersPerConn, 1),
		buffers: sync.Pool{
			New: func() any { return make([]byte, bufferSize) },
		},
		conns:    xsync.NewMapOf[net.Conn, struct{}](),
		requests: metrics.GetOrCreateCounter(fmt.Sprintf(`mclock_rpc_requests_total{transport=%q}`, name)),
		failures: metrics.GetOrCreateCounter(fmt.Sprintf(`mclock_rpc_connection_errors_total{transport=%q}`, name)),
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCServerTransport)
// --------------------------------------------------------------------------

func (t *serverTransport) RegisterHandler(handler transport.ServerHandleFunc) {
	t.handler = handler
}

func (t *serverTransport) Listen(config common.ServerConfig) error {
	t.config = config

	listener, err := t.connector.Listen(config)
	if err != nil {
		return fmt.Errorf("failed to create listener: %v", err)
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return listener.Close()
	}
	t.listener = listener
	t.mu.Unlock()

	Logger.Infof("Starting %s server on %s with %d workers per connection",
		t.connector.GetName(), config.Transport.Endpoint, t.maxWorkersPerConn)

	for {
		conn, err := listener.Accept()
		if errors.Is(err, net.ErrClosed) {
			return nil
		}
		if err != nil {
			Logger.Errorf("accept on %s failed: %v", config.Transport.Endpoint, err)
			continue
		}

		if err := t.connector.UpgradeConnection(conn, config); err != nil {
			Logger.Warningf("Failed to upgrade %s connection: %v", t.connector.GetName(), err)
		}

		sc := &serverConn{
			parent:  t,
			conn:    conn,
			timeout: time.Duration(config.TimeoutSecond) * time.Second,
			slots:   make(chan struct{}, t.maxWorkersPerConn),
		}
		go sc.serve()
	}
}

func (t *serverTransport) Close() error {
	t.mu.Lock()
	t.closed = true
	listener := t.listener
	t.mu.Unlock()

	var err error
	if listener != nil {
		err = listener.Close()
	}

	// unblock the readers of all open connections
	t.conns.Range(func(conn net.Conn, _ struct{}) bool {
		_ = conn.Close()
		return true
	})

	return err
}

// --------------------------------------------------------------------------
// Connection Handling
// --------------------------------------------------------------------------

// serve reads request frames until the connection breaks and waits for
// the outstanding answers before closing it. Connections have no read
// deadline, idle clients stay connected.
func (c *serverConn) serve() {
	c.parent.conns.Store(c.conn, struct{}{})
	defer func() {
		c.workers.Wait()
		c.parent.conns.Delete(c.conn)
		_ = c.conn.Close()
	}()

	for {
		buf := c.parent.buffers.Get().([]byte)
		id, data, err := readFrame(c.conn, buf)
		if err != nil {
			c.parent.buffers.Put(buf)
			switch {
			case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
				Logger.Debugf("connection %s closed", c.conn.RemoteAddr())
			default:
				c.parent.failures.Inc()
				Logger.Errorf("reading request from %s failed: %v", c.conn.RemoteAddr(), err)
			}
			return
		}

		c.slots <- struct{}{}
		c.workers.Add(1)
		go func() {
			defer func() {
				c.parent.buffers.Put(buf)
				<-c.slots
				c.workers.Done()
			}()
			c.dispatch(id, data)
		}()
	}
}

// dispatch runs the handler and writes the answer under the request id
func (c *serverConn) dispatch(id uint64, req []byte) {
	start := time.Now()
	resp := c.parent.handler(req)
	c.parent.requests.Inc()
	Logger.Debugf("request %d handled in %s", id, time.Since(start))

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.timeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
			Logger.Errorf("Failed to set write deadline: %v", err)
			return
		}
	}
	if err := writeFrame(c.conn, id, resp); err != nil {
		c.parent.failures.Inc()
		Logger.Errorf("writing answer %d to %s failed: %v", id, c.conn.RemoteAddr(), err)
	}
}

package base

import (
	"math/rand"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/mclock/rpc/common"
	"github.com/ValentinKolb/mclock/rpc/transport"
	"github.com/cockroachdb/errors"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = logger.GetLogger("transport/rpc")

var (
	// ErrNotConnected is returned by Send if no connection is available
	ErrNotConnected = errors.New("no active connections available")
	// ErrTimeout is returned if the server did not answer in time
	ErrTimeout = errors.New("request timed out")
	// ErrConnectionLost is handed to requests whose connection broke
	ErrConnectionLost = errors.New("connection lost")
)

const (
	// initialBackoff is the pause before the second attempt, it doubles per attempt
	initialBackoff = 50 * time.Millisecond
	// defaultDialTimeout is used if the client config has no timeout
	defaultDialTimeout = 5 * time.Second
)

// -----------------------------------------------------------
// Interface Definitions for dependency injection
// -----------------------------------------------------------

// IClientConnector defines the interface for transport-specific connection operations
type IClientConnector interface {
	// Connect dials a single connection to endpoint
	Connect(endpoint string, timeout time.Duration) (net.Conn, error)

	// GetName returns the name of the transport type (e.g., "unix", "tcp")
	GetName() string

	// UpgradeConnection applies protocol-specific settings to an established connection
	UpgradeConnection(conn net.Conn, config common.ClientConfig) error
}

// -----------------------------------------------------------
// Helper Types
// -----------------------------------------------------------

// reply is what the reader goroutine hands to a waiting request
type reply struct {
	data []byte
	err  error
}

// peer is one multiplexed stream to an endpoint. Requests are matched to
// their answers by request id, so many requests share the stream.
type peer struct {
	endpoint string
	owner    *clientTransport

	mu   sync.Mutex // guards conn and serializes frame writes
	conn net.Conn

	pending *xsync.MapOf[uint64, chan reply]
	done    chan struct{}
}

// clientTransport multiplexes requests over a fixed set of peers,
// independent of the specific transport medium (unix, tcp, etc.)
type clientTransport struct {
	connector IClientConnector
	config    common.ClientConfig

	peers     atomic.Pointer[[]*peer]
	nextPeer  atomic.Uint64 // round robin
	requestID atomic.Uint64
}

// -----------------------------------------------------------
// Transport Factory Method (used for tcp, unix, etc.)
// -----------------------------------------------------------

// NewBaseClientTransport creates a new base client transport with the specified connector
func NewBaseClientTransport(connector IClientConnector) transport.IRPCClientTransport {
	return &clientTransport{
		connector: connector,
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCClientTransport)
// --------------------------------------------------------------------------

func (t *clientTransport) Connect(config common.ClientConfig) error {
	if len(config.Transport.Endpoints) == 0 {
		return errors.New("no endpoints provided")
	}

	t.closePeers()
	t.config = config

	perEndpoint := max(config.Transport.ConnectionsPerEndpoint, 1)
	wanted := len(config.Transport.Endpoints) * perEndpoint
	peers := make([]*peer, 0, wanted)

	for _, endpoint := range config.Transport.Endpoints {
		for i := 0; i < perEndpoint; i++ {
			p := &peer{
				endpoint: endpoint,
				owner:    t,
				pending:  xsync.NewMapOf[uint64, chan reply](),
				done:     make(chan struct{}),
			}
			if err := p.dial(); err != nil {
				Logger.Warningf("connection %d/%d to %s failed: %v", i+1, perEndpoint, endpoint, err)
				continue
			}
			peers = append(peers, p)
			go p.readLoop()
		}
	}

	if len(peers) == 0 {
		return errors.Newf("failed to connect to any of %v", config.Transport.Endpoints)
	}
	t.peers.Store(&peers)

	Logger.Infof("%s transport: %d/%d connections to %d endpoints established",
		t.connector.GetName(), len(peers), wanted, len(config.Transport.Endpoints))
	return nil
}

func (t *clientTransport) Send(req []byte) ([]byte, error) {
	attempts := max(t.config.Transport.RetryCount, 1)
	pause := initialBackoff

	var lastErr error
	for i := 0; i < attempts; i++ {
		p := t.pick()
		if p == nil {
			return nil, ErrNotConnected
		}

		resp, err := p.roundTrip(t.requestID.Add(1), req, t.timeout())
		if err == nil {
			return resp, nil
		}
		lastErr = err
		Logger.Debugf("attempt %d/%d to %s failed: %v", i+1, attempts, p.endpoint, err)

		if i < attempts-1 {
			time.Sleep(jitter(pause))
			pause *= 2
		}
	}

	return nil, errors.Wrapf(lastErr, "request failed after %d attempts", attempts)
}

func (t *clientTransport) Close() error {
	t.closePeers()
	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

func (t *clientTransport) timeout() time.Duration {
	return time.Duration(t.config.TimeoutSecond) * time.Second
}

// pick selects the next peer via round robin
func (t *clientTransport) pick() *peer {
	ptr := t.peers.Load()
	if ptr == nil || len(*ptr) == 0 {
		return nil
	}
	peers := *ptr
	if len(peers) == 1 {
		return peers[0]
	}
	return peers[t.nextPeer.Add(1)%uint64(len(peers))]
}

func (t *clientTransport) closePeers() {
	ptr := t.peers.Swap(nil)
	if ptr == nil {
		return
	}
	for _, p := range *ptr {
		p.close()
	}
}

// jitter spreads d by +-10%
func jitter(d time.Duration) time.Duration {
	return time.Duration(float64(d) * (0.9 + 0.2*rand.Float64()))
}

// roundTrip writes one request frame and waits for the matching answer.
// Every attempt uses a fresh id, a late answer to an earlier attempt is dropped.
func (p *peer) roundTrip(id uint64, req []byte, timeout time.Duration) ([]byte, error) {
	ch := make(chan reply, 1)
	p.pending.Store(id, ch)
	defer p.pending.Delete(id)

	p.mu.Lock()
	conn := p.conn
	if conn == nil {
		p.mu.Unlock()
		return nil, errors.Wrapf(ErrConnectionLost, "connection to %s is closed", p.endpoint)
	}
	if timeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(timeout))
	}
	err := writeFrame(conn, id, req)
	p.mu.Unlock()
	if err != nil {
		return nil, err
	}

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case r := <-ch:
		return r.data, r.err
	case <-expired:
		return nil, ErrTimeout
	}
}

func (p *peer) closed() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

func (p *peer) close() {
	close(p.done)
	p.mu.Lock()
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
	p.mu.Unlock()
}

// abort hands err to every request still waiting on this peer
func (p *peer) abort(err error) {
	p.pending.Range(func(_ uint64, ch chan reply) bool {
		select {
		case ch <- reply{err: err}:
		default:
		}
		return true
	})
}

// readLoop delivers answer frames to the waiting requests. A broken
// stream fails all pending requests and is redialed once.
func (p *peer) readLoop() {
	for !p.closed() {
		p.mu.Lock()
		conn := p.conn
		p.mu.Unlock()
		if conn == nil {
			return
		}

		id, data, err := readFrame(conn, nil)
		if err != nil {
			if p.closed() {
				p.abort(ErrConnectionLost)
				return
			}
			Logger.Warningf("reading from %s failed: %v", p.endpoint, err)
			p.abort(errors.Wrap(ErrConnectionLost, err.Error()))

			if err := p.dial(); err != nil {
				Logger.Errorf("reconnecting to %s failed: %v", p.endpoint, err)
				return
			}
			continue
		}

		ch, ok := p.pending.Load(id)
		if !ok {
			Logger.Warningf("dropping answer for unknown request %d", id)
			continue
		}
		select {
		case ch <- reply{data: data}:
		default:
		}
	}
}

// dial replaces the connection of the peer by a new one
func (p *peer) dial() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}

	timeout := p.owner.timeout()
	if timeout <= 0 {
		timeout = defaultDialTimeout
	}

	conn, err := p.owner.connector.Connect(p.endpoint, timeout)
	if err != nil {
		return errors.Wrapf(err, "dial %s", p.endpoint)
	}
	if err := p.owner.connector.UpgradeConnection(conn, p.owner.config); err != nil {
		_ = conn.Close()
		return errors.Wrapf(err, "upgrade connection to %s", p.endpoint)
	}

	p.conn = conn
	return nil
}

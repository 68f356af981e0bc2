package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/ValentinKolb/mclock/lib/lockmgr"
	"github.com/ValentinKolb/mclock/lib/persist"
	"github.com/ValentinKolb/mclock/lib/session"
	"github.com/ValentinKolb/mclock/rpc/common"
	"github.com/ValentinKolb/mclock/rpc/serializer"
	"github.com/ValentinKolb/mclock/rpc/transport"
	"github.com/cockroachdb/errors"
	"github.com/lni/dragonboat/v4/logger"
	gometrics "github.com/rcrowley/go-metrics"
)

var Logger = logger.GetLogger("rpc")

// NewRPCServer creates a new RPC server
// It takes a config, transport and serializer as parameters
//
// Usage:
//
//	s := server.NewRPCServer(
//		*config,
//		http.NewHttpServerTransport(),
//		serializer.NewJSONSerializer(),
//	)
//
//	if err := s.Serve(); err != nil {
//		panic(err)
//	}
func NewRPCServer(
	config common.ServerConfig,
	transport transport.IRPCServerTransport,
	serializer serializer.IRPCSerializer,
) *RPCServer {
	// https://github.com/golang/go/issues/17393
	if runtime.GOOS == "darwin" {
		signal.Ignore(syscall.Signal(0xd))
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &RPCServer{
		config:     config,
		transport:  transport,
		serializer: serializer,
		adapter:    NewLockManagerServerAdapter(),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// RPCServer owns the lock manager of the process and exposes it through the
// RPC transport and the REST lock service.
type RPCServer struct {
	config     common.ServerConfig
	transport  transport.IRPCServerTransport
	serializer serializer.IRPCSerializer
	adapter    IRPCServerAdapter

	locks      lockmgr.ILockManager
	fileStore  *persist.FileStore // nil if the table is kept in memory
	sessions   *session.Registry
	restServer *http.Server

	ctx          context.Context
	cancel       context.CancelFunc
	shutdownOnce sync.Once
}

// Serve initializes the lock manager and blocks serving requests until the
// process receives SIGINT/SIGTERM, Close is called or the transport fails.
func (s *RPCServer) Serve() error {
	if err := s.init(); err != nil {
		s.shutdown()
		return err
	}
	defer s.shutdown()

	ctx, stop := signal.NotifyContext(s.ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Expire idle sessions
	go s.sessions.Run(ctx)

	errCh := make(chan error, 2)
	go func() {
		errCh <- s.transport.Listen(s.config)
	}()
	if s.restServer != nil {
		go func() {
			Logger.Infof("Starting REST lock service on %s", s.restServer.Addr)
			if err := s.restServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				errCh <- errors.Wrap(err, "rest server")
			}
		}()
	}

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		Logger.Infof("Shutting down lock server")
		return nil
	}
}

// Close stops a running Serve call.
func (s *RPCServer) Close() error {
	s.cancel()
	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

func (s *RPCServer) init() error {

	// Init logger
	if err := common.InitLoggers(s.config); err != nil {
		return err
	}

	Logger.Infof("Created RPC Server (serializer=%s)", s.serializer.Name())
	Logger.Infof("%s", s.config.String())

	byteOrder, err := s.config.ResourceByteOrder()
	if err != nil {
		return err
	}

	// Open the lock table. The file lock makes this process the only
	// authority over the persisted table.
	var store lockmgr.IPersistence
	if s.config.LockFile != "" {
		fileStore := persist.NewFileStore(s.config.LockFile)
		if err := fileStore.Lock(); err != nil {
			return err
		}
		s.fileStore = fileStore
		store = fileStore
	} else {
		Logger.Warningf("no lock file configured, locks are lost on restart")
		store = persist.NewMemoryStore(nil)
	}

	s.locks = lockmgr.NewLockManager(lockmgr.Options{
		CaseInsensitive: s.config.CaseInsensitive,
		ByteOrder:       byteOrder,
		Store:           store,
	})
	s.sessions = session.NewRegistry(s.config.SessionTimeout(), s.locks.ReleaseBySession)

	// Mount the REST lock service
	var registry gometrics.Registry
	if s.fileStore != nil {
		registry = s.fileStore.Registry()
	}
	rest := newRESTHandler(s.locks, s.sessions, registry)

	if httpTransport, ok := s.transport.(transport.IHTTPServerTransport); ok {
		if s.config.RESTEndpoint != "" {
			Logger.Infof("REST endpoint %s ignored, the REST lock service is served by the http transport", s.config.RESTEndpoint)
		}
		rest.register(httpTransport)
	} else if s.config.RESTEndpoint != "" {
		mux := http.NewServeMux()
		rest.register(mux)
		s.restServer = &http.Server{
			Addr:              s.config.RESTEndpoint,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
	} else {
		Logger.Infof("REST lock service disabled (no rest endpoint configured)")
	}

	// Configure the transport layer
	s.transport.RegisterHandler(s.handle)

	Logger.Infof("mclock setup completed successfully")
	return nil
}

// handle decodes a request, lets the adapter run it and encodes the response
func (s *RPCServer) handle(req []byte) []byte {
	var msg common.Message
	var respMsg *common.Message

	// Decode the request
	if err := s.serializer.Deserialize(req, &msg); err != nil {
		respMsg = common.NewErrorResponse(errors.Wrap(err, "failed to deserialize request").Error())
	} else {
		respMsg = s.adapter.Handle(&msg, s.locks)
	}

	// Return result
	val, err := s.serializer.Serialize(*respMsg)
	if err != nil {
		Logger.Errorf("failed to serialize response: %v", err)
		val, _ = s.serializer.Serialize(*common.NewErrorResponse(errors.Wrap(err, "failed to serialize response").Error()))
	}
	return val
}

// shutdown releases everything init acquired
func (s *RPCServer) shutdown() {
	s.shutdownOnce.Do(func() {
		s.cancel()

		if err := s.transport.Close(); err != nil {
			Logger.Warningf("failed to close transport: %v", err)
		}
		if s.restServer != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := s.restServer.Shutdown(ctx); err != nil {
				Logger.Warningf("failed to stop REST server: %v", err)
			}
			cancel()
		}
		if s.locks != nil {
			if err := s.locks.Close(); err != nil {
				Logger.Warningf("failed to stop lock manager: %v", err)
			}
		}
		if s.fileStore != nil {
			if err := s.fileStore.Unlock(); err != nil {
				Logger.Warningf("failed to unlock %s: %v", s.fileStore.Path(), err)
			}
		}
	})
}

package persist

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/ValentinKolb/mclock/lib/lockmgr"
	"github.com/cockroachdb/errors"
	"github.com/gofrs/flock"
	"github.com/lni/dragonboat/v4/logger"
	gometrics "github.com/rcrowley/go-metrics"
)

var log = logger.GetLogger("persist")

const (
	// DefaultPath is the location of the lock table on the management controller.
	DefaultPath = "/var/lib/obmc/bmc-console-mgmt/locks/ibm_mc_persistent_lock_data.json"

	fileMode = 0o640
	dirMode  = 0o755
)

// ErrLocked is returned by FileStore.Lock if another process owns the file.
var ErrLocked = errors.New("lock file is owned by another process")

// FileStore persists the lock table as a single JSON document. Every save
// rewrites the complete document into a temporary file and renames it over
// the previous one, a crash never leaves a half written table behind.
//
// Thread-safety: all methods are safe for concurrent use.
type FileStore struct {
	path  string
	mu    sync.Mutex
	flock *flock.Flock

	registry     gometrics.Registry
	loadTimer    gometrics.Timer
	saveTimer    gometrics.Timer
	saveFailures gometrics.Counter
	transactions gometrics.Gauge
	bytesWritten gometrics.Gauge
}

// NewFileStore creates a FileStore for the given path. Nothing is touched on
// disk before the first Load or Save.
func NewFileStore(path string) *FileStore {
	if path == "" {
		path = DefaultPath
	}
	r := gometrics.NewRegistry()
	return &FileStore{
		path:         path,
		flock:        flock.New(path + ".lock"),
		registry:     r,
		loadTimer:    gometrics.NewRegisteredTimer("load", r),
		saveTimer:    gometrics.NewRegisteredTimer("save", r),
		saveFailures: gometrics.NewRegisteredCounter("save.failures", r),
		transactions: gometrics.NewRegisteredGauge("transactions", r),
		bytesWritten: gometrics.NewRegisteredGauge("bytes", r),
	}
}

// Path returns the location of the persisted table.
func (s *FileStore) Path() string {
	return s.path
}

// Registry returns the metrics registry of the store (load/save timers,
// failures and the size of the last written table).
func (s *FileStore) Registry() gometrics.Registry {
	return s.registry
}

// Lock takes an exclusive OS lock on "<path>.lock" so that a single process
// owns the table. It returns ErrLocked if the lock is held elsewhere.
func (s *FileStore) Lock() error {
	if err := os.MkdirAll(filepath.Dir(s.path), dirMode); err != nil {
		return errors.Wrapf(err, "create directory of %s", s.path)
	}
	ok, err := s.flock.TryLock()
	if err != nil {
		return errors.Wrapf(err, "lock %s", s.flock.Path())
	}
	if !ok {
		return errors.WithDetailf(ErrLocked, "lock file: %s", s.flock.Path())
	}
	return nil
}

// Unlock releases the lock taken by Lock.
func (s *FileStore) Unlock() error {
	return s.flock.Unlock()
}

// --------------------------------------------------------------------------
// Interface Methods (docu see lockmgr/interface.go)
// --------------------------------------------------------------------------

// Load reads the persisted table. A missing file yields an empty table. A
// document that cannot be parsed is logged and also yields an empty table,
// keys that are not transaction ids are skipped.
func (s *FileStore) Load() (map[uint32][]lockmgr.LockRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.loadTimer.UpdateSince(time.Now())

	table := make(map[uint32][]lockmgr.LockRecord)

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		log.Infof("no persisted locks at %s", s.path)
		return table, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", s.path)
	}

	var raw map[string][]fileRecord
	if err := json.Unmarshal(data, &raw); err != nil {
		log.Errorf("ignoring unreadable lock file %s: %v", s.path, err)
		return table, nil
	}

	for key, records := range raw {
		id, err := strconv.ParseUint(key, 10, 32)
		if err != nil {
			log.Warningf("skipping persisted entry with invalid transaction id %q", key)
			continue
		}
		out := make([]lockmgr.LockRecord, len(records))
		for i, r := range records {
			out[i] = lockmgr.LockRecord(r)
		}
		table[uint32(id)] = out
	}

	s.transactions.Update(int64(len(table)))
	log.Infof("loaded %d persisted transactions from %s", len(table), s.path)
	return table, nil
}

// Save replaces the file with the given table.
func (s *FileStore) Save(table map[uint32][]lockmgr.LockRecord) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.saveTimer.UpdateSince(time.Now())
	defer func() {
		if err != nil {
			s.saveFailures.Inc(1)
		}
	}()

	data, err := encodeTable(table)
	if err != nil {
		return errors.Wrap(err, "encode lock table")
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, dirMode); err != nil {
		return errors.Wrapf(err, "create directory %s", dir)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return errors.Wrapf(err, "create temporary file in %s", dir)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return errors.Wrapf(err, "write %s", tmpName)
	}
	if err = tmp.Chmod(fileMode); err != nil {
		_ = tmp.Close()
		return errors.Wrapf(err, "chmod %s", tmpName)
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return errors.Wrapf(err, "sync %s", tmpName)
	}
	if err = tmp.Close(); err != nil {
		return errors.Wrapf(err, "close %s", tmpName)
	}
	if err = os.Rename(tmpName, s.path); err != nil {
		return errors.Wrapf(err, "rename %s", tmpName)
	}

	s.transactions.Update(int64(len(table)))
	s.bytesWritten.Update(int64(len(data)))
	return nil
}

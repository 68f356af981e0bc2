package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ValentinKolb/mclock/lib/lockmgr"
	"github.com/ValentinKolb/mclock/lib/persist"
	"github.com/ValentinKolb/mclock/lib/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type restFixture struct {
	locks    lockmgr.ILockManager
	sessions *session.Registry
	mux      *http.ServeMux
}

func newRESTFixture(t *testing.T) *restFixture {
	t.Helper()
	locks := lockmgr.NewLockManager(lockmgr.Options{})
	t.Cleanup(func() { _ = locks.Close() })

	f := &restFixture{
		locks:    locks,
		sessions: session.NewRegistry(0, locks.ReleaseBySession),
		mux:      http.NewServeMux(),
	}
	newRESTHandler(f.locks, f.sessions, nil).register(f.mux)
	return f
}

// do sends a request as the given session ("" = anonymous)
func (f *restFixture) do(t *testing.T, method, path, sessionID, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if sessionID != "" {
		req.Header.Set(headerSessionID, sessionID)
		req.Header.Set(headerHMCID, "hmc-"+sessionID)
	}
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	return rec
}

const writeLockBody = `{"Request":[{"LockType":"Write","ResourceID":234,"SegmentFlags":[{"LockFlag":"LockAll","SegmentLength":2},{"LockFlag":"DontLock","SegmentLength":4}]}]}`

// writeBody requests a write lock that only collides with the same resource
func writeBody(resource uint64) string {
	return fmt.Sprintf(`{"Request":[{"LockType":"Write","ResourceID":%d,"SegmentFlags":[{"LockFlag":"DontLock","SegmentLength":2},{"LockFlag":"DontLock","SegmentLength":4}]}]}`, resource)
}

type recordDoc struct {
	TransactionID uint32
	SessionID     string
	HMCID         string
	LockType      string
	ResourceID    uint64
	SegmentFlags  []struct {
		LockFlag      string
		SegmentLength uint32
	}
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestRESTDescriptor(t *testing.T) {
	f := newRESTFixture(t)

	for _, path := range []string{lockServicePath, lockServicePath + "/"} {
		rec := f.do(t, http.MethodGet, path, "", "")
		require.Equal(t, http.StatusOK, rec.Code, path)

		doc := decode[struct {
			ID      string `json:"Id"`
			Actions map[string]struct {
				Target string `json:"target"`
			}
		}](t, rec)
		assert.Equal(t, "LockService", doc.ID)
		assert.Equal(t, acquireLockPath, doc.Actions["#LockService.AcquireLock"].Target)
		assert.Equal(t, releaseLockPath, doc.Actions["#LockService.ReleaseLock"].Target)
		assert.Equal(t, getLockListPath, doc.Actions["#LockService.GetLockList"].Target)
	}
}

func TestRESTRequiresSession(t *testing.T) {
	f := newRESTFixture(t)

	for _, path := range []string{acquireLockPath, releaseLockPath, getLockListPath} {
		rec := f.do(t, http.MethodPost, path, "", "{}")
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}
	assert.Equal(t, 0, f.sessions.Len())
}

func TestRESTAcquire(t *testing.T) {
	f := newRESTFixture(t)

	rec := f.do(t, http.MethodPost, acquireLockPath, "s1", writeLockBody)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, uint32(1), decode[struct{ TransactionID uint32 }](t, rec).TransactionID)

	// the session was recorded
	info, ok := f.sessions.Get("s1")
	require.True(t, ok)
	assert.Equal(t, "hmc-s1", info.HMCID)

	t.Run("conflict with table", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, acquireLockPath, "s2", writeLockBody)
		require.Equal(t, http.StatusConflict, rec.Code)

		record := decode[struct{ Record recordDoc }](t, rec).Record
		assert.Equal(t, uint32(1), record.TransactionID)
		assert.Equal(t, "s1", record.SessionID)
		assert.Equal(t, "hmc-s1", record.HMCID)
		assert.Equal(t, "Write", record.LockType)
		assert.Equal(t, uint64(234), record.ResourceID)
		require.Len(t, record.SegmentFlags, 2)
		assert.Equal(t, "LockAll", record.SegmentFlags[0].LockFlag)
		assert.Equal(t, uint32(2), record.SegmentFlags[0].SegmentLength)
	})

	t.Run("conflict within request", func(t *testing.T) {
		body := `{"Request":[` +
			`{"LockType":"Write","ResourceID":99,"SegmentFlags":[{"LockFlag":"LockAll","SegmentLength":2},{"LockFlag":"DontLock","SegmentLength":4}]},` +
			`{"LockType":"Write","ResourceID":99,"SegmentFlags":[{"LockFlag":"LockAll","SegmentLength":2},{"LockFlag":"DontLock","SegmentLength":4}]}]}`
		rec := f.do(t, http.MethodPost, acquireLockPath, "s3", body)
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Empty(t, rec.Body.String())
	})

	badBodies := map[string]string{
		"invalid lock type": `{"Request":[{"LockType":"Exclusive","ResourceID":1,"SegmentFlags":[{"LockFlag":"DontLock","SegmentLength":2},{"LockFlag":"DontLock","SegmentLength":4}]}]}`,
		"one segment":       `{"Request":[{"LockType":"Read","ResourceID":1,"SegmentFlags":[{"LockFlag":"DontLock","SegmentLength":2}]}]}`,
		"missing resource":  `{"Request":[{"LockType":"Read","SegmentFlags":[]}]}`,
		"missing length":    `{"Request":[{"LockType":"Read","ResourceID":1,"SegmentFlags":[{"LockFlag":"DontLock"}]}]}`,
		"unknown property":  `{"Request":[],"Foo":1}`,
		"missing request":   `{}`,
		"empty request":     `{"Request":[]}`,
		"not json":          `Request`,
	}
	for name, body := range badBodies {
		t.Run(name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, acquireLockPath, "s4", body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}

	// nothing but the first grant made it into the table
	transactions, err := f.locks.List([]string{"s1", "s2", "s3", "s4"})
	require.NoError(t, err)
	require.Len(t, transactions, 1)
	assert.Equal(t, uint32(1), transactions[0].ID)
}

func TestRESTRelease(t *testing.T) {
	f := newRESTFixture(t)

	rec := f.do(t, http.MethodPost, acquireLockPath, "s1", writeLockBody)
	require.Equal(t, http.StatusOK, rec.Code)

	t.Run("not owner", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, releaseLockPath, "s2", `{"Type":"Transaction","TransactionIDs":[1]}`)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		record := decode[struct{ Record recordDoc }](t, rec).Record
		assert.Equal(t, uint32(1), record.TransactionID)
		assert.Equal(t, "s1", record.SessionID)
	})

	t.Run("unknown transaction", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, releaseLockPath, "s1", `{"Type":"Transaction","TransactionIDs":[1,7]}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown type", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, releaseLockPath, "s1", `{"Type":"Everything","TransactionIDs":[1]}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("missing ids", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, releaseLockPath, "s1", `{"Type":"Transaction"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	// still held after all refused releases
	transactions, err := f.locks.List([]string{"s1"})
	require.NoError(t, err)
	require.Len(t, transactions, 1)

	rec = f.do(t, http.MethodPost, releaseLockPath, "s1", `{"Type":"Transaction","TransactionIDs":[1]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	transactions, err = f.locks.List([]string{"s1"})
	require.NoError(t, err)
	assert.Empty(t, transactions)
}

func TestRESTReleaseSession(t *testing.T) {
	f := newRESTFixture(t)

	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, acquireLockPath, "s1", writeBody(10)).Code)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, acquireLockPath, "s2", writeBody(20)).Code)

	rec := f.do(t, http.MethodPost, releaseLockPath, "s1", `{"Type":"Session","TransactionIDs":[]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	transactions, err := f.locks.List([]string{"s1", "s2"})
	require.NoError(t, err)
	require.Len(t, transactions, 1)
	assert.Equal(t, "s2", transactions[0].Owner().SessionID)
}

func TestRESTDeleteSession(t *testing.T) {
	f := newRESTFixture(t)

	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, acquireLockPath, "s1", writeBody(10)).Code)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, acquireLockPath, "s1", writeBody(11)).Code)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, acquireLockPath, "s2", writeBody(20)).Code)
	_, known := f.sessions.Get("s1")
	require.True(t, known)

	rec := f.do(t, http.MethodDelete, sessionsPath+"/s1", "s2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"Released":2}`, rec.Body.String())

	_, known = f.sessions.Get("s1")
	assert.False(t, known)
	transactions, err := f.locks.List([]string{"s1", "s2"})
	require.NoError(t, err)
	require.Len(t, transactions, 1)
	assert.Equal(t, "s2", transactions[0].Owner().SessionID)

	// unknown sessions release nothing
	rec = f.do(t, http.MethodDelete, sessionsPath+"/s1", "s2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"Released":0}`, rec.Body.String())

	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodDelete, sessionsPath+"/s2", "", "").Code)
}

func TestRESTGetLockList(t *testing.T) {
	f := newRESTFixture(t)

	body := `{"Request":[` +
		`{"LockType":"Read","ResourceID":10,"SegmentFlags":[{"LockFlag":"DontLock","SegmentLength":2},{"LockFlag":"DontLock","SegmentLength":4}]},` +
		`{"LockType":"Read","ResourceID":20,"SegmentFlags":[{"LockFlag":"DontLock","SegmentLength":2},{"LockFlag":"DontLock","SegmentLength":4}]}]}`
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, acquireLockPath, "s1", body).Code)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, acquireLockPath, "s2", writeBody(30)).Code)

	rec := f.do(t, http.MethodPost, getLockListPath, "s3", `{"SessionIDs":["s1","s2","unknown"]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	records := decode[struct{ Records []recordDoc }](t, rec).Records
	require.Len(t, records, 3)
	assert.Equal(t, uint32(1), records[0].TransactionID)
	assert.Equal(t, uint64(10), records[0].ResourceID)
	assert.Equal(t, uint32(1), records[1].TransactionID)
	assert.Equal(t, uint64(20), records[1].ResourceID)
	assert.Equal(t, uint32(2), records[2].TransactionID)
	assert.Equal(t, "s2", records[2].SessionID)

	rec = f.do(t, http.MethodPost, getLockListPath, "s3", `{"SessionIDs":[]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"Records":[]}`, rec.Body.String())

	rec = f.do(t, http.MethodPost, getLockListPath, "s3", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRESTMetrics(t *testing.T) {
	f := newRESTFixture(t)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, acquireLockPath, "s1", writeLockBody).Code)

	rec := f.do(t, http.MethodGet, metricsPath, "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `mclock_acquire_total{result="granted"}`)

	// persistence metrics are only served for a file backed table
	rec = f.do(t, http.MethodGet, persistenceMetric, "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRESTPersistenceMetrics(t *testing.T) {
	store := persist.NewFileStore(filepath.Join(t.TempDir(), "locks.json"))
	locks := lockmgr.NewLockManager(lockmgr.Options{Store: store})
	t.Cleanup(func() { _ = locks.Close() })

	mux := http.NewServeMux()
	newRESTHandler(locks, session.NewRegistry(0, locks.ReleaseBySession), store.Registry()).register(mux)

	req := httptest.NewRequest(http.MethodGet, persistenceMetric, nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	assert.NotEmpty(t, doc)
}

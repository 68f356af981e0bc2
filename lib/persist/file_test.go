package persist

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/ValentinKolb/mclock/lib/lockmgr"
	gometrics "github.com/rcrowley/go-metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTable() map[uint32][]lockmgr.LockRecord {
	return map[uint32][]lockmgr.LockRecord{
		1: {{
			SessionID:  "xxxxx",
			HMCID:      "hmc-id",
			LockType:   lockmgr.LockTypeRead,
			ResourceID: 234,
			Segments:   []lockmgr.Segment{{Flag: lockmgr.FlagDontLock, Length: 2}, {Flag: lockmgr.FlagDontLock, Length: 4}},
		}},
		7: {{
			SessionID:  "yyyyy",
			HMCID:      "hmc-2",
			LockType:   lockmgr.LockTypeWrite,
			ResourceID: 18446744073709551615,
			Segments:   []lockmgr.Segment{{Flag: lockmgr.FlagLockAll, Length: 1}, {Flag: lockmgr.FlagDontLock, Length: 3}},
		}},
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bmc-console-mgmt", "locks", "locks.json")
	s := NewFileStore(path)

	require.NoError(t, s.Save(testTable()))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o640), info.Mode().Perm())

	loaded, err := NewFileStore(path).Load()
	require.NoError(t, err)
	assert.Equal(t, testTable(), loaded)

	// no temporary files are left behind
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestFileStoreFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "locks.json")
	s := NewFileStore(path)
	require.NoError(t, s.Save(map[uint32][]lockmgr.LockRecord{1: testTable()[1]}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"1":[["xxxxx","hmc-id","Read",234,[["DontLock",2],["DontLock",4]]]]}`, string(data))
}

func TestFileStoreLoad(t *testing.T) {
	tests := []struct {
		name    string
		content *string
		want    int
	}{
		{"missing file", nil, 0},
		{"garbage", strPtr("not json"), 0},
		{"wrong record shape", strPtr(`{"1":[["a","b"]]}`), 0},
		{"empty object", strPtr(`{}`), 0},
		{"invalid keys are skipped", strPtr(`{"x":[],"-1":[],"2":[["s","h","Write",1,[["LockAll",1],["DontLock",2]]]]}`), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "locks.json")
			if tt.content != nil {
				require.NoError(t, os.WriteFile(path, []byte(*tt.content), 0o600))
			}
			table, err := NewFileStore(path).Load()
			require.NoError(t, err)
			assert.NotNil(t, table)
			assert.Len(t, table, tt.want)
		})
	}
}

func TestFileStoreLoadKeepsInvalidRecords(t *testing.T) {
	// validation is up to the lock manager
	path := filepath.Join(t.TempDir(), "locks.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"9":[["s","h","Bogus",1,[]]]}`), 0o600))

	table, err := NewFileStore(path).Load()
	require.NoError(t, err)
	require.Contains(t, table, uint32(9))
	assert.Equal(t, lockmgr.LockType("Bogus"), table[9][0].LockType)
}

func TestFileStoreSaveFailure(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o600))

	// the parent "directory" is a regular file
	s := NewFileStore(filepath.Join(blocker, "locks.json"))
	assert.Error(t, s.Save(testTable()))
	assert.Equal(t, int64(1), s.saveFailures.Count())
}

func TestFileStoreLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "locks", "locks.json")

	a := NewFileStore(path)
	require.NoError(t, a.Lock())

	b := NewFileStore(path)
	assert.ErrorIs(t, b.Lock(), ErrLocked)

	require.NoError(t, a.Unlock())
	require.NoError(t, b.Lock())
	require.NoError(t, b.Unlock())
}

func TestFileStoreMetrics(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "locks.json"))
	require.NoError(t, s.Save(testTable()))
	_, err := s.Load()
	require.NoError(t, err)

	assert.Equal(t, int64(1), s.saveTimer.Count())
	assert.Equal(t, int64(1), s.loadTimer.Count())
	assert.Equal(t, int64(2), s.transactions.Value())

	var buf bytes.Buffer
	gometrics.WriteJSONOnce(s.Registry(), &buf)
	assert.Contains(t, buf.String(), `"save"`)
	assert.Contains(t, buf.String(), `"transactions"`)
}

func TestFileStoreWithLockManager(t *testing.T) {
	path := filepath.Join(t.TempDir(), "locks.json")

	m := lockmgr.NewLockManager(lockmgr.Options{Store: NewFileStore(path)})
	id, err := m.Acquire(testTable()[1])
	require.NoError(t, err)
	require.NoError(t, m.Close())

	// a restarted manager sees the lock and continues the id sequence
	m = lockmgr.NewLockManager(lockmgr.Options{Store: NewFileStore(path)})
	defer m.Close()

	txs, err := m.List([]string{"xxxxx"})
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, id, txs[0].ID)

	next := testTable()[7]
	next[0].SessionID = "xxxxx"
	next[0].HMCID = "hmc-id"
	next[0].ResourceID = 1
	next[0].LockType = lockmgr.LockTypeRead
	id2, err := m.Acquire(next)
	require.NoError(t, err)
	assert.Equal(t, id+1, id2)
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore(testTable())

	table, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, testTable(), table)

	// loaded tables are copies
	table[1][0].Segments[0].Length = 4
	again, _ := s.Load()
	assert.Equal(t, uint32(2), again[1][0].Segments[0].Length)

	require.NoError(t, s.Save(nil))
	table, err = s.Load()
	require.NoError(t, err)
	assert.Empty(t, table)
	assert.Equal(t, 1, s.Saves())
}

func strPtr(s string) *string { return &s }

package lock

import (
	"testing"

	"github.com/ValentinKolb/mclock/lib/lockmgr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSegments(t *testing.T) {
	segments, err := parseSegments("LockAll:2, DontLock:4")
	require.NoError(t, err)
	assert.Equal(t, []lockmgr.Segment{
		{Flag: lockmgr.FlagLockAll, Length: 2},
		{Flag: lockmgr.FlagDontLock, Length: 4},
	}, segments)

	// spelling is checked by the server
	segments, err = parseSegments("lockall:1")
	require.NoError(t, err)
	assert.Equal(t, lockmgr.LockFlag("lockall"), segments[0].Flag)

	_, err = parseSegments("LockAll")
	assert.Error(t, err)
	_, err = parseSegments("LockAll:x")
	assert.Error(t, err)
	_, err = parseSegments("LockAll:-1")
	assert.Error(t, err)
}

func TestParseTransactionIDs(t *testing.T) {
	ids, err := parseTransactionIDs([]string{"1", "42"})
	require.NoError(t, err)
	assert.Equal(t, []uint32{1, 42}, ids)

	_, err = parseTransactionIDs([]string{"1", "abc"})
	assert.Error(t, err)
	_, err = parseTransactionIDs([]string{"4294967296"})
	assert.Error(t, err)
}

func TestWriteRecordsDoNotConflict(t *testing.T) {
	m := lockmgr.NewMatcher(nil)
	owner := lockmgr.Owner{SessionID: "s", HMCID: "h"}
	assert.False(t, m.Conflicts(writeRecord(owner, 1), writeRecord(owner, 2)))
	assert.True(t, m.Conflicts(writeRecord(owner, 1), writeRecord(owner, 1)))
}

package client

import (
	"errors"
	"testing"

	"github.com/ValentinKolb/mclock/lib/lockmgr"
	"github.com/ValentinKolb/mclock/rpc/common"
	"github.com/ValentinKolb/mclock/rpc/serializer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTransport answers every request with the result of reply
type fakeTransport struct {
	reply  func(req common.Message) common.Message
	err    error
	closed int
}

func (f *fakeTransport) Connect(common.ClientConfig) error { return nil }

func (f *fakeTransport) Send(req []byte) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	s := serializer.NewJSONSerializer()
	var msg common.Message
	if err := s.Deserialize(req, &msg); err != nil {
		return nil, err
	}
	return s.Serialize(f.reply(msg))
}

func (f *fakeTransport) Close() error {
	f.closed++
	return nil
}

func newTestClient(t *testing.T, tr *fakeTransport) lockmgr.ILockManager {
	locks, err := NewRPCLockMgr(common.ClientConfig{}, tr, serializer.NewJSONSerializer())
	require.NoError(t, err)
	return locks
}

func TestRPCLockMgrDecodesRefusals(t *testing.T) {
	record := lockmgr.LockRecord{SessionID: "a", HMCID: "h", LockType: lockmgr.LockTypeWrite}
	locks := newTestClient(t, &fakeTransport{reply: func(req common.Message) common.Message {
		return *common.NewAcquireResponse(0, &lockmgr.Error{
			Code:          lockmgr.RetCConflictWithTable,
			Msg:           "conflict",
			TransactionID: 7,
			Record:        &record,
		})
	}})

	_, err := locks.Acquire([]lockmgr.LockRecord{record})
	require.Error(t, err)
	assert.Equal(t, lockmgr.RetCConflictWithTable, lockmgr.CodeOf(err))
	assert.True(t, errors.Is(err, lockmgr.ErrConflictWithTable))

	var lockErr *lockmgr.Error
	require.True(t, errors.As(err, &lockErr))
	assert.Equal(t, uint32(7), lockErr.TransactionID)
	assert.Equal(t, "a", lockErr.Record.SessionID)
}

func TestRPCLockMgrProtocolErrors(t *testing.T) {
	serverError := newTestClient(t, &fakeTransport{reply: func(common.Message) common.Message {
		return *common.NewErrorResponse("boom")
	}})
	_, err := serverError.List([]string{"a"})
	assert.ErrorContains(t, err, "boom")

	wrongType := newTestClient(t, &fakeTransport{reply: func(common.Message) common.Message {
		return *common.NewReleaseResponse(nil)
	}})
	_, err = wrongType.List([]string{"a"})
	assert.ErrorContains(t, err, "unexpected response type")

	broken := newTestClient(t, &fakeTransport{err: errors.New("wire cut")})
	_, err = broken.ReleaseBySession("a")
	assert.ErrorContains(t, err, "wire cut")
}

func TestRPCLockMgrListNeverNil(t *testing.T) {
	locks := newTestClient(t, &fakeTransport{reply: func(common.Message) common.Message {
		return *common.NewListResponse(nil, nil)
	}})
	transactions, err := locks.List([]string{"a"})
	require.NoError(t, err)
	assert.NotNil(t, transactions)
	assert.Empty(t, transactions)
}

func TestRPCLockMgrClose(t *testing.T) {
	tr := &fakeTransport{reply: func(req common.Message) common.Message {
		return *common.NewReleaseSessionResponse(2, nil)
	}}
	locks := newTestClient(t, tr)

	released, err := locks.ReleaseBySession("a")
	require.NoError(t, err)
	assert.Equal(t, 2, released)

	require.NoError(t, locks.Close())
	require.NoError(t, locks.Close())
	assert.Equal(t, 1, tr.closed)

	_, err = locks.ReleaseBySession("a")
	assert.ErrorIs(t, err, lockmgr.ErrClosed)
}

package server

import (
	"github.com/ValentinKolb/mclock/lib/lockmgr"
	"github.com/ValentinKolb/mclock/rpc/common"
)

// IRPCServerAdapter maps decoded requests onto lock manager calls.
// Failures are reported inside the returned Message, never as a Go error,
// so every request gets an answer.
type IRPCServerAdapter interface {
	Handle(req *common.Message, locks lockmgr.ILockManager) (resp *common.Message)
}

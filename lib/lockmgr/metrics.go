package lockmgr

import (
	"github.com/VictoriaMetrics/metrics"
)

var (
	acquireGranted      = metrics.NewCounter(`mclock_acquire_total{result="granted"}`)
	acquireInvalid      = metrics.NewCounter(`mclock_acquire_total{result="invalid"}`)
	acquireSelfConflict = metrics.NewCounter(`mclock_acquire_total{result="conflict_within_request"}`)
	acquireConflict     = metrics.NewCounter(`mclock_acquire_total{result="conflict_with_table"}`)
	acquireFailed       = metrics.NewCounter(`mclock_acquire_total{result="error"}`)

	releaseOK      = metrics.NewCounter(`mclock_release_total{result="released"}`)
	releaseUnknown = metrics.NewCounter(`mclock_release_total{result="unknown_transaction"}`)
	releaseForeign = metrics.NewCounter(`mclock_release_total{result="not_owner"}`)

	sessionReleased = metrics.NewCounter(`mclock_session_released_transactions_total`)
	persistFailures = metrics.NewCounter(`mclock_persist_failures_total`)

	acquireDuration = metrics.NewHistogram(`mclock_acquire_duration_seconds`)
)

func countAcquire(err error) {
	switch CodeOf(err) {
	case RetCSuccess:
		acquireGranted.Inc()
	case RetCInvalidRequest:
		acquireInvalid.Inc()
	case RetCConflictWithinRequest:
		acquireSelfConflict.Inc()
	case RetCConflictWithTable:
		acquireConflict.Inc()
	default:
		acquireFailed.Inc()
	}
}

func countRelease(err error) {
	switch CodeOf(err) {
	case RetCSuccess:
		releaseOK.Inc()
	case RetCUnknownTransaction:
		releaseUnknown.Inc()
	case RetCNotOwner:
		releaseForeign.Inc()
	}
}

package server

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/ValentinKolb/mclock/lib/lockmgr"
	"github.com/ValentinKolb/mclock/lib/session"
	"github.com/VictoriaMetrics/metrics"
	"github.com/cockroachdb/errors"
	gometrics "github.com/rcrowley/go-metrics"
)

// Routes of the REST lock service
const (
	lockServicePath   = "/ibm/v1/HMC/LockService"
	acquireLockPath   = lockServicePath + "/Actions/LockService.AcquireLock"
	releaseLockPath   = lockServicePath + "/Actions/LockService.ReleaseLock"
	getLockListPath   = lockServicePath + "/Actions/LockService.GetLockList"
	sessionsPath      = lockServicePath + "/Sessions"
	metricsPath       = "/metrics"
	persistenceMetric = "/debug/persistence"
)

// Identity headers set by the authenticating front end
const (
	headerSessionID = "X-Session-Id"
	headerHMCID     = "X-HMC-Id"
)

// Release types of the ReleaseLock action
const (
	releaseTypeTransaction = "Transaction"
	releaseTypeSession     = "Session"
)

// maxRESTBodySize limits the size of a REST request body
const maxRESTBodySize = 1 << 20

// router is implemented by http.ServeMux and transport.IHTTPServerTransport
type router interface {
	Handle(pattern string, handler http.Handler)
}

// --------------------------------------------------------------------------
// JSON documents
// --------------------------------------------------------------------------

type restSegment struct {
	LockFlag      *string `json:"LockFlag"`
	SegmentLength *uint32 `json:"SegmentLength"`
}

type restLockRequest struct {
	LockType     *string        `json:"LockType"`
	ResourceID   *uint64        `json:"ResourceID"`
	SegmentFlags *[]restSegment `json:"SegmentFlags"`
}

type acquireBody struct {
	Request *[]restLockRequest `json:"Request"`
}

type releaseBody struct {
	Type           *string   `json:"Type"`
	TransactionIDs *[]uint32 `json:"TransactionIDs"`
}

type lockListBody struct {
	SessionIDs *[]string `json:"SessionIDs"`
}

type restSegmentOut struct {
	LockFlag      lockmgr.LockFlag `json:"LockFlag"`
	SegmentLength uint32           `json:"SegmentLength"`
}

// restRecord is a lock record as reported to the management console
type restRecord struct {
	TransactionID uint32           `json:"TransactionID"`
	SessionID     string           `json:"SessionID"`
	HMCID         string           `json:"HMCID"`
	LockType      lockmgr.LockType `json:"LockType"`
	ResourceID    uint64           `json:"ResourceID"`
	SegmentFlags  []restSegmentOut `json:"SegmentFlags"`
}

func newRESTRecord(txID uint32, r lockmgr.LockRecord) restRecord {
	segments := make([]restSegmentOut, len(r.Segments))
	for i, s := range r.Segments {
		segments[i] = restSegmentOut{LockFlag: s.Flag, SegmentLength: s.Length}
	}
	return restRecord{
		TransactionID: txID,
		SessionID:     r.SessionID,
		HMCID:         r.HMCID,
		LockType:      r.LockType,
		ResourceID:    r.ResourceID,
		SegmentFlags:  segments,
	}
}

// --------------------------------------------------------------------------
// Handler
// --------------------------------------------------------------------------

// restHandler serves the LockService REST resource of the management console
type restHandler struct {
	locks    lockmgr.ILockManager
	sessions *session.Registry
	registry gometrics.Registry // persistence metrics, may be nil
}

func newRESTHandler(locks lockmgr.ILockManager, sessions *session.Registry, registry gometrics.Registry) *restHandler {
	return &restHandler{
		locks:    locks,
		sessions: sessions,
		registry: registry,
	}
}

// register mounts all routes of the REST lock service on r
func (h *restHandler) register(r router) {
	r.Handle("GET "+lockServicePath, http.HandlerFunc(h.handleDescriptor))
	r.Handle("GET "+lockServicePath+"/{$}", http.HandlerFunc(h.handleDescriptor))
	r.Handle("POST "+acquireLockPath, h.withSession(h.handleAcquire))
	r.Handle("POST "+releaseLockPath, h.withSession(h.handleRelease))
	r.Handle("POST "+getLockListPath, h.withSession(h.handleGetLockList))
	r.Handle("DELETE "+sessionsPath+"/{id}", h.withSession(h.handleDeleteSession))

	r.Handle("GET "+metricsPath, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		metrics.WritePrometheus(w, true)
	}))
	if h.registry != nil {
		r.Handle("GET "+persistenceMetric, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			gometrics.WriteJSONOnce(h.registry, w)
		}))
	}
}

// sessionHandlerFunc is a handler that needs the identity of the caller
type sessionHandlerFunc func(w http.ResponseWriter, r *http.Request, owner lockmgr.Owner)

// withSession resolves the caller from the identity headers and records
// the activity of the session
func (h *restHandler) withSession(next sessionHandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		owner := lockmgr.Owner{
			SessionID: r.Header.Get(headerSessionID),
			HMCID:     r.Header.Get(headerHMCID),
		}
		if owner.SessionID == "" {
			writeError(w, http.StatusUnauthorized, "missing "+headerSessionID+" header")
			return
		}
		h.sessions.Touch(owner.SessionID, owner.HMCID)
		next(w, r, owner)
	})
}

func (h *restHandler) handleDescriptor(w http.ResponseWriter, _ *http.Request) {
	action := func(target string) map[string]string {
		return map[string]string{"target": target}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"@odata.type": "#LockService.v1_0_0.LockService",
		"@odata.id":   lockServicePath + "/",
		"Id":          "LockService",
		"Name":        "LockService",
		"Actions": map[string]interface{}{
			"#LockService.AcquireLock": action(acquireLockPath),
			"#LockService.ReleaseLock": action(releaseLockPath),
			"#LockService.GetLockList": action(getLockListPath),
		},
	})
}

func (h *restHandler) handleAcquire(w http.ResponseWriter, r *http.Request, owner lockmgr.Owner) {
	var body acquireBody
	if err := decodeBody(w, r, &body); err != nil || body.Request == nil {
		writeError(w, http.StatusBadRequest, "request body must contain a Request list")
		return
	}

	records := make([]lockmgr.LockRecord, 0, len(*body.Request))
	for _, req := range *body.Request {
		if req.LockType == nil || req.ResourceID == nil || req.SegmentFlags == nil {
			writeError(w, http.StatusBadRequest, "every request needs LockType, ResourceID and SegmentFlags")
			return
		}
		record := lockmgr.LockRecord{
			SessionID:  owner.SessionID,
			HMCID:      owner.HMCID,
			LockType:   lockmgr.LockType(*req.LockType),
			ResourceID: *req.ResourceID,
			Segments:   make([]lockmgr.Segment, 0, len(*req.SegmentFlags)),
		}
		for _, s := range *req.SegmentFlags {
			if s.LockFlag == nil || s.SegmentLength == nil {
				writeError(w, http.StatusBadRequest, "every segment needs LockFlag and SegmentLength")
				return
			}
			record.Segments = append(record.Segments, lockmgr.Segment{
				Flag:   lockmgr.LockFlag(*s.LockFlag),
				Length: *s.SegmentLength,
			})
		}
		records = append(records, record)
	}

	txID, err := h.locks.Acquire(records)
	var lockErr *lockmgr.Error
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]uint32{"TransactionID": txID})
	case errors.As(err, &lockErr) && lockErr.Code == lockmgr.RetCInvalidRequest:
		writeError(w, http.StatusBadRequest, lockErr.Msg)
	case errors.As(err, &lockErr) && lockErr.Code == lockmgr.RetCConflictWithinRequest:
		w.WriteHeader(http.StatusConflict)
	case errors.As(err, &lockErr) && lockErr.Code == lockmgr.RetCConflictWithTable && lockErr.Record != nil:
		writeJSON(w, http.StatusConflict, map[string]restRecord{"Record": newRESTRecord(lockErr.TransactionID, *lockErr.Record)})
	default:
		Logger.Errorf("acquire for session %s failed: %v", owner.SessionID, err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (h *restHandler) handleRelease(w http.ResponseWriter, r *http.Request, owner lockmgr.Owner) {
	var body releaseBody
	if err := decodeBody(w, r, &body); err != nil || body.Type == nil || body.TransactionIDs == nil {
		writeError(w, http.StatusBadRequest, "request body must contain Type and TransactionIDs")
		return
	}

	switch *body.Type {
	case releaseTypeTransaction:
		err := h.locks.Release(*body.TransactionIDs, owner)
		var lockErr *lockmgr.Error
		switch {
		case err == nil:
			w.WriteHeader(http.StatusOK)
		case errors.As(err, &lockErr) && lockErr.Code == lockmgr.RetCUnknownTransaction:
			writeError(w, http.StatusBadRequest, lockErr.Error())
		case errors.As(err, &lockErr) && lockErr.Code == lockmgr.RetCNotOwner && lockErr.Record != nil:
			writeJSON(w, http.StatusUnauthorized, map[string]restRecord{"Record": newRESTRecord(lockErr.TransactionID, *lockErr.Record)})
		case errors.As(err, &lockErr) && lockErr.Code == lockmgr.RetCInvalidRequest:
			writeError(w, http.StatusBadRequest, lockErr.Msg)
		default:
			Logger.Errorf("release for session %s failed: %v", owner.SessionID, err)
			writeError(w, http.StatusInternalServerError, "internal error")
		}
	case releaseTypeSession:
		if _, err := h.locks.ReleaseBySession(owner.SessionID); err != nil {
			Logger.Errorf("release of session %s failed: %v", owner.SessionID, err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		w.WriteHeader(http.StatusOK)
	default:
		writeError(w, http.StatusBadRequest, "the value "+*body.Type+" for the property Type is not in the list of acceptable values")
	}
}

func (h *restHandler) handleGetLockList(w http.ResponseWriter, r *http.Request, owner lockmgr.Owner) {
	var body lockListBody
	if err := decodeBody(w, r, &body); err != nil || body.SessionIDs == nil {
		writeError(w, http.StatusBadRequest, "request body must contain SessionIDs")
		return
	}

	transactions, err := h.locks.List(*body.SessionIDs)
	if err != nil {
		Logger.Errorf("list for session %s failed: %v", owner.SessionID, err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	records := make([]restRecord, 0, len(transactions))
	for _, tx := range transactions {
		for _, record := range tx.Records {
			records = append(records, newRESTRecord(tx.ID, record))
		}
	}
	writeJSON(w, http.StatusOK, map[string][]restRecord{"Records": records})
}

// handleDeleteSession ends a console session and drops all of its locks
func (h *restHandler) handleDeleteSession(w http.ResponseWriter, r *http.Request, owner lockmgr.Owner) {
	id := r.PathValue("id")
	released, err := h.sessions.Remove(id)
	if err != nil {
		Logger.Errorf("removing session %s for %s failed: %v", id, owner.SessionID, err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"Released": released})
}

// --------------------------------------------------------------------------
// Helper Functions
// --------------------------------------------------------------------------

// decodeBody strictly decodes a JSON request body into dst
func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRESTBodySize))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return err
	}
	if _, err := decoder.Token(); err != io.EOF {
		return errors.New("unexpected data after the JSON document")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		Logger.Errorf("failed to write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

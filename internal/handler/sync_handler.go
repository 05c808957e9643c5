package handler

import (
	"net/http"
	"strconv"

	"filesync-server/internal/domain"
	"filesync-server/internal/middleware"
	"filesync-server/internal/service"
	"filesync-server/pkg/response"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

type SyncHandler struct {
	syncService     *service.SyncService
	conflictService *service.ConflictService
	log             logrus.FieldLogger
}

func NewSyncHandler(syncService *service.SyncService, conflictService *service.ConflictService, log logrus.FieldLogger) *SyncHandler {
	return &SyncHandler{
		syncService:     syncService,
		conflictService: conflictService,
		log:             log,
	}
}

func (h *SyncHandler) RecordChange(w http.ResponseWriter, r *http.Request) {
	var req domain.RecordChangeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.log, err)
		return
	}

	res, err := h.syncService.RecordChange(r.Context(), middleware.GetUserID(r), &req)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	response.Created(w, res)
}

func (h *SyncHandler) Sync(w http.ResponseWriter, r *http.Request) {
	req, err := parseSyncRequest(r)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	res, err := h.syncService.Sync(r.Context(), middleware.GetUserID(r), req)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	response.Success(w, res)
}

func parseSyncRequest(r *http.Request) (*domain.SyncRequest, error) {
	q := r.URL.Query()
	req := &domain.SyncRequest{DeviceID: q.Get("device_id")}

	if v := q.Get("cursor"); v != "" {
		cursor, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, domain.NewValidation("cursor", "must be an integer")
		}
		req.Cursor = &cursor
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil {
			return nil, domain.NewValidation("limit", "must be an integer")
		}
		req.Limit = limit
	}
	if v := q.Get("include_deleted"); v != "" {
		include, err := strconv.ParseBool(v)
		if err != nil {
			return nil, domain.NewValidation("include_deleted", "must be a boolean")
		}
		req.IncludeDeleted = &include
	}

	return req, nil
}

// ListConflicts lists pending conflicts, or the full history of one item
// when item_id is given.
func (h *SyncHandler) ListConflicts(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r)

	var (
		conflicts []*domain.SyncConflict
		err       error
	)
	if itemID := r.URL.Query().Get("item_id"); itemID != "" {
		conflicts, err = h.conflictService.History(r.Context(), userID, itemID)
	} else {
		conflicts, err = h.conflictService.ListPending(r.Context(), userID)
	}
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	response.Success(w, conflicts)
}

func (h *SyncHandler) GetConflict(w http.ResponseWriter, r *http.Request) {
	conflict, err := h.conflictService.Get(r.Context(), middleware.GetUserID(r), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	response.Success(w, conflict)
}

func (h *SyncHandler) ResolveConflict(w http.ResponseWriter, r *http.Request) {
	var req domain.ResolveConflictRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.log, err)
		return
	}

	res, err := h.conflictService.Resolve(r.Context(), middleware.GetUserID(r), mux.Vars(r)["id"], &req)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	response.Success(w, res)
}

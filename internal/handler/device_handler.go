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

type DeviceHandler struct {
	service *service.DeviceService
	log     logrus.FieldLogger
}

func NewDeviceHandler(service *service.DeviceService, log logrus.FieldLogger) *DeviceHandler {
	return &DeviceHandler{
		service: service,
		log:     log,
	}
}

func (h *DeviceHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req domain.RegisterDeviceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.log, err)
		return
	}

	device, err := h.service.Register(r.Context(), middleware.GetUserID(r), &req)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	response.Created(w, device)
}

func (h *DeviceHandler) List(w http.ResponseWriter, r *http.Request) {
	activeOnly := false
	if v := r.URL.Query().Get("active_only"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			response.BadRequest(w, "invalid active_only parameter")
			return
		}
		activeOnly = parsed
	}

	devices, err := h.service.List(r.Context(), middleware.GetUserID(r), activeOnly)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	response.Success(w, devices)
}

func (h *DeviceHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	deviceID := mux.Vars(r)["deviceId"]

	if err := h.service.Deactivate(r.Context(), middleware.GetUserID(r), deviceID); err != nil {
		writeError(w, h.log, err)
		return
	}

	response.Success(w, map[string]string{"message": "Device deactivated"})
}

func (h *DeviceHandler) Remove(w http.ResponseWriter, r *http.Request) {
	deviceID := mux.Vars(r)["deviceId"]

	if err := h.service.Remove(r.Context(), middleware.GetUserID(r), deviceID); err != nil {
		writeError(w, h.log, err)
		return
	}

	response.NoContent(w)
}

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

type SignatureHandler struct {
	service *service.SignatureService
	log     logrus.FieldLogger
}

func NewSignatureHandler(service *service.SignatureService, log logrus.FieldLogger) *SignatureHandler {
	return &SignatureHandler{
		service: service,
		log:     log,
	}
}

func (h *SignatureHandler) Generate(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	version, err := strconv.ParseInt(vars["version"], 10, 64)
	if err != nil {
		writeError(w, h.log, domain.NewValidation("version", "must be an integer"))
		return
	}

	var blockSize int
	if v := r.URL.Query().Get("block_size"); v != "" {
		if blockSize, err = strconv.Atoi(v); err != nil {
			writeError(w, h.log, domain.NewValidation("block_size", "must be an integer"))
			return
		}
	}

	sig, err := h.service.Generate(r.Context(), middleware.GetUserID(r), vars["itemId"], version, blockSize)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	response.Success(w, sig)
}

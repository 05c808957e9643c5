package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"filesync-server/internal/domain"
	"filesync-server/pkg/response"

	"github.com/sirupsen/logrus"
)

// writeError maps domain errors to HTTP statuses. Unexpected errors are
// logged and hidden from the client.
func writeError(w http.ResponseWriter, log logrus.FieldLogger, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		response.NotFound(w, err.Error())
	case errors.Is(err, domain.ErrValidation):
		response.BadRequest(w, err.Error())
	case errors.Is(err, domain.ErrNotSupported):
		response.NotImplemented(w, err.Error())
	case errors.Is(err, domain.ErrStorageBackend):
		log.WithError(err).Error("storage backend failure")
		response.ServiceUnavailable(w, "storage backend unavailable")
	default:
		log.WithError(err).Error("unhandled error")
		response.InternalError(w, "internal server error")
	}
}

func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return domain.NewValidation("body", "invalid request payload")
	}
	return nil
}

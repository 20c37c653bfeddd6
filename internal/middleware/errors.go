package middleware

import (
	"encoding/json"
	"net/http"

	"character-sync/internal/models"
	"character-sync/pkg/errors"
)

// WriteError writes err as a JSON error body. Errors outside the service
// taxonomy are reported as internal errors without detail.
func WriteError(w http.ResponseWriter, err error) {
	se := errors.As(err)
	description := se.Description()
	if se.Code == errors.ErrInternalServer.Code {
		description = errors.ErrInternalServer.Message
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(se.Status)
	json.NewEncoder(w).Encode(models.ErrorResponse{
		Error:            se.Code,
		ErrorDescription: description,
	})
}

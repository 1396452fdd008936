package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/authgate/authgate-go/internal/model"
)

const maxBodyBytes = 1 << 20 // 1MB

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func respond(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, model.Response{Success: status < http.StatusBadRequest, Message: msg})
}

// decodeBody reads a JSON request body into dst. It writes the error
// response itself and reports whether the handler may continue.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respond(w, http.StatusRequestEntityTooLarge, "Request body too large")
			return false
		}
		respond(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

func writeValidationError(w http.ResponseWriter, fields []model.FieldError) {
	writeJSON(w, http.StatusBadRequest, model.Response{
		Success: false,
		Message: "Invalid input",
		Errors:  fields,
	})
}

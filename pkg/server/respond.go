package server

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/odvcencio/pocketdev/pkg/errors"
)

const maxBodyBytes int64 = 1 << 20

// apiResponse is the envelope every JSON endpoint returns.
type apiResponse struct {
	Status  string `json:"status"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(apiResponse{Status: "ok", Data: data})
}

func respondError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus(err))
	_ = json.NewEncoder(w).Encode(apiResponse{Status: "error", Message: err.Error()})
}

// httpStatus maps an error code to a response status.
func httpStatus(err error) int {
	switch errors.GetCode(err) {
	case errors.ErrCodeInvalidInput, errors.ErrCodeNotAFile, errors.ErrCodeNotADir:
		return http.StatusBadRequest
	case errors.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case errors.ErrCodePathTraversal, errors.ErrCodeCommandBlocked,
		errors.ErrCodeCommandNotAllowed, errors.ErrCodePermission:
		return http.StatusForbidden
	case errors.ErrCodeNotFound:
		return http.StatusNotFound
	case errors.ErrCodeFileTooLarge:
		return http.StatusRequestEntityTooLarge
	case errors.ErrCodeTooManyRequests:
		return http.StatusTooManyRequests
	case errors.ErrCodeModelUnavailable:
		return http.StatusBadGateway
	case errors.ErrCodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// decodeBody reads a JSON request body into dst with a size cap.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	if r.Body == nil {
		return errors.New(errors.ErrCodeInvalidInput, "request body required")
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if err == io.EOF {
			return errors.New(errors.ErrCodeInvalidInput, "request body required")
		}
		return errors.Wrap(err, errors.ErrCodeInvalidInput, "invalid JSON body")
	}
	return nil
}

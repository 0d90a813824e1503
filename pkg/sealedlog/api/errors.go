package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"
	"github.com/tendant/sealed-log/pkg/sealedlog"
)

// Error codes carried in ErrorResponse.Code.
const (
	CodeRejected         = "rejected"
	CodeIndexOutOfBounds = "index_out_of_bounds"
	CodeUnauthorized     = "unauthorized"
	CodeInvalidTarget    = "invalid_target"
	CodeUnauthenticated  = "unauthenticated"
	CodeBadRequest       = "bad_request"
	CodeIntegrity        = "integrity"
	CodeInternal         = "internal"
)

// ErrorResponse is the body of every non-2xx response
type ErrorResponse struct {
	Code    string           `json:"code"`
	Message string           `json:"message"`
	Reason  sealedlog.Reason `json:"reason,omitempty"`
}

func writeStatus(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	render.Status(r, status)
	render.JSON(w, r, ErrorResponse{Code: code, Message: message})
}

// writeError maps service errors to HTTP responses.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	resp := ErrorResponse{Message: err.Error()}
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, sealedlog.ErrRejected):
		status = http.StatusUnprocessableEntity
		resp.Code = CodeRejected
		resp.Reason, _ = sealedlog.RejectionReason(err)
	case errors.Is(err, sealedlog.ErrIndexOutOfBounds):
		status = http.StatusNotFound
		resp.Code = CodeIndexOutOfBounds
	case errors.Is(err, sealedlog.ErrUnauthorized):
		status = http.StatusForbidden
		resp.Code = CodeUnauthorized
	case errors.Is(err, sealedlog.ErrInvalidTarget):
		status = http.StatusBadRequest
		resp.Code = CodeInvalidTarget
	case errors.Is(err, sealedlog.ErrIntegrity):
		resp.Code = CodeIntegrity
		slog.Error("Stored payload failed verification", "error", err)
	default:
		resp.Code = CodeInternal
		resp.Message = http.StatusText(status)
		slog.Error("Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}

	render.Status(r, status)
	render.JSON(w, r, resp)
}

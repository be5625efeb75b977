package httpapi

import (
	"net/http"

	"github.com/ralphswarm/conductor/internal/conductorerr"
)

// statusFor maps a conductorerr.Kind to its HTTP status, the way the
// teacher's pkg/common/errors.AppError carries an HTTPStatus field.
func statusFor(err error) int {
	switch conductorerr.KindOf(err) {
	case conductorerr.NotFound:
		return http.StatusNotFound
	case conductorerr.NotSupported:
		return http.StatusNotImplemented
	case conductorerr.InvalidArgument:
		return http.StatusBadRequest
	case conductorerr.Cancelled:
		return http.StatusConflict
	case conductorerr.AuthenticationFailed:
		return http.StatusUnauthorized
	case conductorerr.ProtocolError, conductorerr.SpawnFailed, conductorerr.InitializeFailed,
		conductorerr.SessionFailed, conductorerr.PromptFailed, conductorerr.IoError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func newErrorResponse(err error) errorResponse {
	return errorResponse{Error: err.Error(), Kind: string(conductorerr.KindOf(err))}
}

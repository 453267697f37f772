package gateway

import (
	"context"
	"errors"
	"net/http"

	"portalpilot-go/core/apperr"
)

// errorBody converts err into its wire form.
func errorBody(err error) *ErrorBody {
	code := apperr.Code(err)
	msg := err.Error()
	if code == apperr.CodeInternal {
		msg = "internal error"
	}
	return &ErrorBody{Code: code, Reason: apperr.Reason(err), Message: msg}
}

// httpStatus maps an error to the status of the request/response API.
func httpStatus(err error) int {
	switch apperr.Code(err) {
	case apperr.CodeSessionNotFound:
		return http.StatusNotFound
	case apperr.CodeSessionBusy:
		return http.StatusConflict
	case apperr.CodeInvalidAction, apperr.CodeCredentialNotFound:
		return http.StatusUnprocessableEntity
	case apperr.CodeActionFailed:
		return http.StatusBadGateway
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return http.StatusRequestTimeout
	}
	return http.StatusInternalServerError
}

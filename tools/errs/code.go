package errs

import "net/http"

const (
	InvalidArgument     = 1001
	NotFound            = 1004
	PermissionDenied    = 1003
	Unauthenticated     = 1002
	PartialFanout       = 1100
	ServerInternalError = 500
)

var (
	ErrInvalidArgument  = NewCodeError(InvalidArgument, "InvalidArgument")
	ErrNotFound         = NewCodeError(NotFound, "NotFound")
	ErrPermissionDenied = NewCodeError(PermissionDenied, "PermissionDenied")
	ErrUnauthenticated  = NewCodeError(Unauthenticated, "Unauthenticated")
	ErrPartialFanout    = NewCodeError(PartialFanout, "PartialFanoutFailure")
	ErrInternal         = NewCodeError(ServerInternalError, "ServerInternalError")
)

// HTTPStatus maps an error code to the status the gateway answers with.
func HTTPStatus(code int) int {
	switch code {
	case 0:
		return http.StatusOK
	case InvalidArgument:
		return http.StatusBadRequest
	case NotFound:
		return http.StatusNotFound
	case PermissionDenied:
		return http.StatusForbidden
	case Unauthenticated:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

package remote

import (
	"fmt"
	"net/http"
	"strings"

	pkgerrors "github.com/angelmondragon/tableside-sync/pkg/errors"
)

// ErrNotFound marks a 404 from the order service.
var ErrNotFound = pkgerrors.New(pkgerrors.CodeNotFound, "order not found on order service")

// StatusError carries the HTTP status of a non-success response.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("status %d", e.Status)
	}
	return fmt.Sprintf("status %d: %s", e.Status, e.Body)
}

// classify maps a non-success status onto the error taxonomy: 404 is not
// found, 409/408/429/5xx are retryable, any other 4xx is a terminal rejection.
func classify(status int, body, op string) error {
	cause := &StatusError{Status: status, Body: strings.TrimSpace(body)}
	switch {
	case status == http.StatusNotFound:
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, ErrNotFound, op)
	case status == http.StatusConflict:
		return pkgerrors.Wrap(pkgerrors.CodeConflict, cause, op)
	case status == http.StatusRequestTimeout, status == http.StatusTooManyRequests, status >= 500:
		return pkgerrors.Wrap(pkgerrors.CodeRemoteUnavailable, cause, op)
	case status >= 400:
		return pkgerrors.Wrap(pkgerrors.CodeRemoteRejected, cause, op).
			WithDetails(map[string]any{"status": status})
	default:
		return pkgerrors.Wrap(pkgerrors.CodeRemoteUnavailable, cause, op)
	}
}

// IsNotFound reports whether err is a 404 from the order service.
func IsNotFound(err error) bool {
	return pkgerrors.Is(err, pkgerrors.CodeNotFound)
}

package rest

import (
	"errors"
	"fmt"
	"net/http"
)

// RemoteError is a non-success response from the drive API.
type RemoteError struct {
	Status int
	Body   string
}

func (e *RemoteError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("remote operation failed: %s", http.StatusText(e.Status))
	}
	return fmt.Sprintf("remote operation failed (%d): %s", e.Status, e.Body)
}

// AsRemote checks whether err is a *RemoteError.
func AsRemote(err error) (*RemoteError, bool) {
	var re *RemoteError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}

// IsStatus reports whether err is a *RemoteError with the given status.
func IsStatus(err error, status int) bool {
	re, ok := AsRemote(err)
	return ok && re.Status == status
}

// IsNotFound reports whether err is a 404 from the remote service.
func IsNotFound(err error) bool {
	return IsStatus(err, http.StatusNotFound)
}

package registry

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes surfaced to API clients.
const (
	// CodeAlreadyExists reports a publish of an (id, version) pair that is
	// already registered.
	CodeAlreadyExists = "node_type_already_exists"
	// CodeNotFound reports a lookup of an id or (id, version) pair that is
	// not registered.
	CodeNotFound = "node_type_not_found"
)

// Error is a registry failure carrying a stable machine-readable code and
// the HTTP status the serving layer should answer with.
type Error struct {
	Code    string
	Message string
	Status  int
}

func (e *Error) Error() string {
	return e.Message
}

// newAlreadyExistsError reports a duplicate publish of id at version.
func newAlreadyExistsError(id, version string) *Error {
	return &Error{
		Code:    CodeAlreadyExists,
		Message: fmt.Sprintf("NodeType '%s@%s' already exists", id, version),
		Status:  http.StatusConflict,
	}
}

// newNotFoundError reports an id with no published versions. The message
// deliberately omits a version so clients can tell "unknown id" apart from
// "known id, missing version".
func newNotFoundError(id string) *Error {
	return &Error{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("NodeType '%s' not found", id),
		Status:  http.StatusNotFound,
	}
}

// newVersionNotFoundError reports a missing explicit version of an id that
// has other published versions.
func newVersionNotFoundError(id, version string) *Error {
	return &Error{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("NodeType '%s@%s' not found", id, version),
		Status:  http.StatusNotFound,
	}
}

// IsNotFound reports whether err is a registry not-found failure.
func IsNotFound(err error) bool {
	var rerr *Error
	return errors.As(err, &rerr) && rerr.Code == CodeNotFound
}

// IsAlreadyExists reports whether err is a registry duplicate-publish
// failure.
func IsAlreadyExists(err error) bool {
	var rerr *Error
	return errors.As(err, &rerr) && rerr.Code == CodeAlreadyExists
}

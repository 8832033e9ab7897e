package store

import (
	"errors"
	"fmt"
	"net/http"
)

// TransportError reports a store request that failed for a reason other
// than a declared key conflict: network failure, auth rejection, or an
// unexpected status.
type TransportError struct {
	Op         string
	Collection string
	StatusCode int
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("store %s %s: %v", e.Op, e.Collection, e.Err)
	}
	return fmt.Sprintf("store %s %s: status=%d body=%s", e.Op, e.Collection, e.StatusCode, e.Body)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ConflictError reports a unique-key collision on a plain insert. Fact
// tables treat it as "already there", master data never sees it because
// upserts declare merge semantics.
type ConflictError struct {
	Collection string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("store insert %s: duplicate key", e.Collection)
}

func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

func transportErr(op, collection string, status int, body string) *TransportError {
	return &TransportError{Op: op, Collection: collection, StatusCode: status, Body: body}
}

func isConflictStatus(code int) bool { return code == http.StatusConflict }

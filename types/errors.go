package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// ErrMissingIdentity aborts a claim run before any group is touched: the
// caller has no DID bound.
var ErrMissingIdentity = errors.New("no DID found")

// ErrUnresolvedPlatform marks a requested platform id with no bound
// implementation. Groups hitting it are skipped, not failed.
var ErrUnresolvedPlatform = errors.New("platform not resolvable")

// APIError is the issuance service's JSON error envelope: a message plus
// the HTTP status it was (or should be) served with.
type APIError struct {
	Message string `json:"error"`
	Code    int    `json:"-"`
}

func (e *APIError) Error() string {
	return e.Message
}

func NewAPIError(code int, format string, args ...any) *APIError {
	return &APIError{Message: fmt.Sprintf(format, args...), Code: code}
}

// RespondWithError writes err as the standard {"error": ...} envelope.
// APIError carries its own status; anything else is a 500.
func RespondWithError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		code = apiErr.Code
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

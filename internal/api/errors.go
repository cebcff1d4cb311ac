package api

import (
	"errors"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// errKind classifies every failure a request can end in.
type errKind int

const (
	kindStoreFailure errKind = iota
	kindNotFound
	kindUnauthorized
	kindBadRequest
	kindTooLarge
)

type response struct {
	status  int
	code    codes.Code
	message string
}

// responses is the only place failures are turned into protocol outcomes.
// Messages are fixed; the underlying cause never reaches the caller.
var responses = map[errKind]response{
	kindNotFound:     {http.StatusNotFound, codes.NotFound, "entry does not exist"},
	kindUnauthorized: {http.StatusUnauthorized, codes.Unauthenticated, "no permission"},
	kindBadRequest:   {http.StatusBadRequest, codes.InvalidArgument, "invalid request body"},
	kindTooLarge:     {http.StatusRequestEntityTooLarge, codes.ResourceExhausted, "payload too large"},
	kindStoreFailure: {http.StatusInternalServerError, codes.Internal, "something went wrong"},
}

// apiError carries a kind and, for logging only, the cause.
type apiError struct {
	kind  errKind
	cause error
}

func (e *apiError) Error() string {
	if e.cause != nil {
		return responses[e.kind].message + ": " + e.cause.Error()
	}
	return responses[e.kind].message
}

func (e *apiError) Unwrap() error { return e.cause }

var (
	errNotFound     = &apiError{kind: kindNotFound}
	errUnauthorized = &apiError{kind: kindUnauthorized}
)

// classify maps any error to its response. Unknown errors are store failures.
func classify(err error) response {
	var ae *apiError
	if errors.As(err, &ae) {
		return responses[ae.kind]
	}
	return responses[kindStoreFailure]
}

func writeError(w http.ResponseWriter, err error) {
	res := classify(err)
	http.Error(w, res.message, res.status)
}

func grpcError(err error) error {
	res := classify(err)
	return status.Error(res.code, res.message)
}

package api

import (
	"crypto/subtle"
	"net/http"

	"google.golang.org/grpc/metadata"
)

// Guard authorizes writes against the configured write token.
// It is immutable and safe to share between requests.
type Guard struct {
	token []byte
}

func NewGuard(token string) Guard {
	return Guard{token: []byte(token)}
}

// Authorize succeeds only if a credential was presented and it is byte for
// byte equal to the write token. An empty token authorizes nothing.
func (g Guard) Authorize(credential string, present bool) error {
	if !present || len(g.token) == 0 {
		return errUnauthorized
	}
	if subtle.ConstantTimeCompare([]byte(credential), g.token) != 1 {
		return errUnauthorized
	}
	return nil
}

// headerCredential returns the first Authorization header value.
func headerCredential(h http.Header) (string, bool) {
	values := h.Values("Authorization")
	if len(values) == 0 {
		return "", false
	}
	return values[0], true
}

// metadataCredential is headerCredential for gRPC metadata.
func metadataCredential(md metadata.MD) (string, bool) {
	values := md.Get("authorization")
	if len(values) == 0 {
		return "", false
	}
	return values[0], true
}

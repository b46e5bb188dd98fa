package api

import (
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
)

const authRealm = `Basic realm="framerec"`

var (
	errNoCredentials  = errors.New("authentication required")
	errBadScheme      = errors.New("invalid authentication type")
	errBadCredentials = errors.New("invalid credentials format")
)

// requireBasicAuth rejects requests to operations that declare security
// unless they carry the configured user and password.
func (s *Server) requireBasicAuth(username, password string) func(huma.Context, func(huma.Context)) {
	want := []byte(username + ":" + password)

	return func(ctx huma.Context, next func(huma.Context)) {
		if op := ctx.Operation(); op != nil && len(op.Security) == 0 {
			next(ctx)
			return
		}

		got, err := basicCredentials(ctx)
		if err != nil {
			s.unauthorized(ctx, err)
			return
		}
		if subtle.ConstantTimeCompare(got, want) != 1 {
			s.logger.Warn("Rejected API credentials", "path", ctx.URL().Path, "remote_addr", ctx.RemoteAddr())
			s.unauthorized(ctx, errors.New("invalid credentials"))
			return
		}
		next(ctx)
	}
}

// basicCredentials returns the decoded "user:password" pair from the
// Authorization header, or from ?auth= since EventSource cannot set headers.
func basicCredentials(ctx huma.Context) ([]byte, error) {
	encoded := ctx.Query("auth")
	if header := ctx.Header("Authorization"); header != "" {
		scheme, rest, _ := strings.Cut(header, " ")
		if !strings.EqualFold(scheme, "Basic") {
			return nil, errBadScheme
		}
		encoded = strings.TrimSpace(rest)
	}
	if encoded == "" {
		return nil, errNoCredentials
	}

	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil || !strings.Contains(string(decoded), ":") {
		return nil, errBadCredentials
	}
	return decoded, nil
}

func (s *Server) unauthorized(ctx huma.Context, err error) {
	ctx.SetHeader("WWW-Authenticate", authRealm)
	_ = huma.WriteErr(s.api, ctx, http.StatusUnauthorized, err.Error())
}

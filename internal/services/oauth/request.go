package oauth

import (
	"net/http"
	"strings"
)

// bodyParam reads a form-encoded body parameter
func bodyParam(r *http.Request, key string) string {
	return r.PostFormValue(key)
}

// authorizeParam reads an authorization request parameter from the query or a form body
func authorizeParam(r *http.Request, key string) string {
	return r.FormValue(key)
}

// clientCredentials prefers HTTP basic auth and falls back to body parameters
func clientCredentials(r *http.Request) (clientID string, secret string, basic bool) {
	if id, pass, ok := r.BasicAuth(); ok && id != "" {
		return id, pass, true
	}
	return bodyParam(r, "client_id"), bodyParam(r, "client_secret"), false
}

// bearerToken extracts the token from an Authorization: Bearer header
func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

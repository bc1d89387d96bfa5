package oauth

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// ErrorCode is the value of the "error" field of an OAuth error response
type ErrorCode string

const (
	ErrInvalidRequest          ErrorCode = "invalid_request"
	ErrInvalidClient           ErrorCode = "invalid_client"
	ErrInvalidGrant            ErrorCode = "invalid_grant"
	ErrInvalidScope            ErrorCode = "invalid_scope"
	ErrUnsupportedGrantType    ErrorCode = "unsupported_grant_type"
	ErrUnsupportedResponseType ErrorCode = "unsupported_response_type"
	ErrAccessDenied            ErrorCode = "access_denied"
	ErrInvalidToken            ErrorCode = "invalid_token"
	ErrAuthorizationPending    ErrorCode = "authorization_pending"
	ErrSlowDown                ErrorCode = "slow_down"
	ErrExpiredToken            ErrorCode = "expired_token"
	ErrServerError             ErrorCode = "server_error"
)

// Error is the single failure type surfaced by the engine.
// It knows how to render itself as a JSON body or as a redirect.
type Error struct {
	Code    ErrorCode
	Message string
	Hint    string
	Status  int

	// RedirectURI is set for errors raised after the client's redirect uri was validated
	RedirectURI string
	State       string
	// Fragment carries the payload in the uri fragment (implicit grant)
	Fragment bool

	basicAuth bool
	cause     error
}

func (e *Error) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Hint)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// WithRedirect returns a copy of e that is delivered to the client's redirect uri
func (e *Error) WithRedirect(redirectURI string, state string, fragment bool) *Error {
	cp := *e
	cp.RedirectURI = redirectURI
	cp.State = state
	cp.Fragment = fragment
	return &cp
}

// IsRedirect reports whether the error should be sent back with a 302
func (e *Error) IsRedirect() bool {
	return e.RedirectURI != ""
}

// Payload returns the fields of the error body
func (e *Error) Payload() map[string]string {
	payload := map[string]string{
		"error":             string(e.Code),
		"error_description": e.Message,
		"message":           e.Message,
	}
	if e.Hint != "" {
		payload["hint"] = e.Hint
	}
	return payload
}

// RedirectURL builds the redirect target carrying the error payload
func (e *Error) RedirectURL() string {
	params := url.Values{}
	for k, v := range e.Payload() {
		params.Set(k, v)
	}
	if e.State != "" {
		params.Set("state", e.State)
	}
	return makeRedirectURI(e.RedirectURI, params, e.Fragment)
}

// Response converts the error into the wire representation
func (e *Error) Response() *Response {
	if e.IsRedirect() {
		return redirectResponse(e.RedirectURL())
	}
	body, _ := json.Marshal(e.Payload())
	resp := &Response{
		Status: e.Status,
		Header: http.Header{},
		Body:   body,
	}
	resp.Header.Set("Content-Type", "application/json")
	if e.Code == ErrInvalidClient && e.basicAuth {
		resp.Header.Set("WWW-Authenticate", `Basic realm="OAuth"`)
	}
	return resp
}

// WriteHTTP writes the error to w
func (e *Error) WriteHTTP(w http.ResponseWriter) error {
	return e.Response().Write(w)
}

// AsError extracts an *Error from err; anything else becomes server_error
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var oerr *Error
	if errors.As(err, &oerr) {
		return oerr
	}
	return ServerError(err)
}

// ErrorResponse renders any error returned by the engine
func ErrorResponse(err error) *Response {
	return AsError(err).Response()
}

func newError(code ErrorCode, status int, message string, hint string) *Error {
	return &Error{Code: code, Status: status, Message: message, Hint: hint}
}

// InvalidRequest reports a missing or malformed parameter
func InvalidRequest(parameter string, hint string) *Error {
	if hint == "" {
		hint = fmt.Sprintf("Check the `%s` parameter", parameter)
	}
	return newError(
		ErrInvalidRequest,
		http.StatusBadRequest,
		"The request is missing a required parameter, includes an invalid parameter value, "+
			"includes a parameter more than once, or is otherwise malformed.",
		hint,
	)
}

// InvalidClient reports failed client authentication without saying which check failed
func InvalidClient(basicAuth bool) *Error {
	e := newError(ErrInvalidClient, http.StatusUnauthorized, "Client authentication failed", "")
	e.basicAuth = basicAuth
	return e
}

// InvalidGrant reports a bad, expired, revoked or foreign code or refresh token
func InvalidGrant(hint string) *Error {
	return newError(
		ErrInvalidGrant,
		http.StatusBadRequest,
		"The provided authorization grant (e.g., authorization code, resource owner credentials) "+
			"or refresh token is invalid, expired, revoked, does not match the redirection URI used "+
			"in the authorization request, or was issued to another client.",
		hint,
	)
}

// InvalidCredentials is the generic resource owner credentials failure
func InvalidCredentials() *Error {
	return newError(ErrInvalidGrant, http.StatusBadRequest, "The user credentials were incorrect.", "")
}

// InvalidScope names the offending scope
func InvalidScope(scope string) *Error {
	return newError(
		ErrInvalidScope,
		http.StatusBadRequest,
		"The requested scope is invalid, unknown, or malformed",
		fmt.Sprintf("Check the `%s` scope", scope),
	)
}

func UnsupportedGrantType() *Error {
	return newError(
		ErrUnsupportedGrantType,
		http.StatusBadRequest,
		"The authorization grant type is not supported by the authorization server.",
		"Check that all required parameters have been provided",
	)
}

func UnsupportedResponseType(responseType string) *Error {
	return newError(
		ErrUnsupportedResponseType,
		http.StatusBadRequest,
		"The authorization server does not support obtaining an authorization code using this method.",
		fmt.Sprintf("Response type `%s` is not enabled", responseType),
	)
}

func AccessDenied(hint string) *Error {
	return newError(
		ErrAccessDenied,
		http.StatusUnauthorized,
		"The resource owner or authorization server denied the request.",
		hint,
	)
}

func InvalidToken(hint string) *Error {
	return newError(ErrInvalidToken, http.StatusUnauthorized, "The access token is invalid.", hint)
}

func AuthorizationPending() *Error {
	return newError(
		ErrAuthorizationPending,
		http.StatusBadRequest,
		"The authorization request is still pending as the end user hasn't yet completed the user interaction steps.",
		"",
	)
}

func SlowDown() *Error {
	return newError(
		ErrSlowDown,
		http.StatusBadRequest,
		"The authorization request is still pending and the client is polling too fast.",
		"Wait for the polling interval before retrying",
	)
}

func ExpiredToken() *Error {
	return newError(
		ErrExpiredToken,
		http.StatusBadRequest,
		"The device code has expired and the device authorization session has concluded.",
		"",
	)
}

// ServerError hides err behind a generic message; err stays reachable through errors.Unwrap
func ServerError(err error) *Error {
	e := newError(
		ErrServerError,
		http.StatusInternalServerError,
		"The authorization server encountered an unexpected condition which prevented it from fulfilling the request.",
		"",
	)
	e.cause = err
	return e
}

// makeRedirectURI appends params to uri as query or fragment
func makeRedirectURI(uri string, params url.Values, fragment bool) string {
	if fragment {
		return uri + "#" + params.Encode()
	}
	sep := "?"
	if strings.Contains(uri, "?") {
		sep = "&"
	}
	return uri + sep + params.Encode()
}

package oauth

import (
	"encoding/json"
	"net/http"
)

// Response is a transport-neutral HTTP response produced by the engine
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Write copies the response to w
func (r *Response) Write(w http.ResponseWriter) error {
	for k, values := range r.Header {
		for _, v := range values {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(r.Status)
	if len(r.Body) == 0 {
		return nil
	}
	_, err := w.Write(r.Body)
	return err
}

// TokenResponse is the body of a successful token endpoint call
type TokenResponse struct {
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// DeviceAuthorizationResponse is the body of the device authorization endpoint (RFC 8628 3.2)
type DeviceAuthorizationResponse struct {
	DeviceCode              string `json:"device_code"`
	UserCode                string `json:"user_code"`
	VerificationURI         string `json:"verification_uri"`
	VerificationURIComplete string `json:"verification_uri_complete"`
	ExpiresIn               int64  `json:"expires_in"`
	Interval                int64  `json:"interval"`
}

// jsonResponse renders body with caching disabled
func jsonResponse(status int, body any) (*Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, ServerError(err)
	}
	resp := &Response{Status: status, Header: http.Header{}, Body: data}
	resp.Header.Set("Content-Type", "application/json; charset=UTF-8")
	resp.Header.Set("Cache-Control", "no-store")
	resp.Header.Set("Pragma", "no-cache")
	return resp, nil
}

func redirectResponse(location string) *Response {
	resp := &Response{Status: http.StatusFound, Header: http.Header{}}
	resp.Header.Set("Location", location)
	return resp
}

func emptyResponse() *Response {
	return &Response{Status: http.StatusOK, Header: http.Header{}}
}

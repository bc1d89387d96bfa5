package httpapp

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"ssoengine/internal/lib/utilities"
	"ssoengine/internal/services/oauth"
)

type handlers struct {
	log *slog.Logger
	srv *oauth.Server
}

// write renders an engine result; errors render themselves as JSON or a redirect
func (h *handlers) write(w http.ResponseWriter, resp *oauth.Response, err error) {
	if err != nil {
		resp = oauth.ErrorResponse(err)
	}
	if werr := resp.Write(w); werr != nil {
		h.log.Warn("failed to write response", slog.String("error", werr.Error()))
	}
}

func (h *handlers) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.log.Warn("failed to write response", slog.String("error", err.Error()))
	}
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"env":    utilities.EnvFromContext(r.Context()),
	})
}

func (h *handlers) jwks(w http.ResponseWriter, r *http.Request) {
	set, err := h.srv.PublicKeys(r.Context())
	if err != nil {
		h.write(w, nil, err)
		return
	}
	w.Header().Set("Cache-Control", "public, max-age=300")
	h.writeJSON(w, http.StatusOK, set)
}

func (h *handlers) token(w http.ResponseWriter, r *http.Request) {
	resp, err := h.srv.RespondToAccessTokenRequest(r.Context(), r)
	h.write(w, resp, err)
}

func (h *handlers) introspect(w http.ResponseWriter, r *http.Request) {
	resp, err := h.srv.Introspect(r.Context(), r)
	h.write(w, resp, err)
}

func (h *handlers) revoke(w http.ResponseWriter, r *http.Request) {
	resp, err := h.srv.Revoke(r.Context(), r)
	h.write(w, resp, err)
}

func (h *handlers) deviceAuthorization(w http.ResponseWriter, r *http.Request) {
	resp, err := h.srv.RespondToDeviceAuthorizationRequest(r.Context(), r)
	h.write(w, resp, err)
}

type tokenInfoResponse struct {
	TokenID   string   `json:"jti"`
	ClientID  string   `json:"client_id"`
	Subject   string   `json:"sub"`
	Scopes    []string `json:"scopes"`
	IssuedAt  int64    `json:"iat"`
	ExpiresAt int64    `json:"exp"`
}

// tokenInfo lets resource servers without a JWT stack validate a bearer token
func (h *handlers) tokenInfo(w http.ResponseWriter, r *http.Request) {
	info, err := h.srv.ValidateAuthenticatedRequest(r.Context(), r)
	if err != nil {
		h.write(w, nil, err)
		return
	}
	h.writeJSON(w, http.StatusOK, tokenInfoResponse{
		TokenID:   info.TokenID,
		ClientID:  info.ClientID,
		Subject:   info.Subject,
		Scopes:    info.Scopes,
		IssuedAt:  info.IssuedAt.Unix(),
		ExpiresAt: info.ExpiresAt.Unix(),
	})
}

// authorize approves on GET; a consent page posts its parameters with decision=deny to refuse
func (h *handlers) authorize(w http.ResponseWriter, r *http.Request) {
	req, err := h.srv.ValidateAuthorizationRequest(r.Context(), r)
	if err != nil {
		h.write(w, nil, err)
		return
	}
	userID, err := utilities.GetUser(r.Context())
	if err != nil {
		h.write(w, nil, oauth.AccessDenied("The resource owner is not authenticated"))
		return
	}
	req.UserID = userID
	req.Approved = r.Method == http.MethodGet || r.PostFormValue("decision") != "deny"

	resp, err := h.srv.CompleteAuthorizationRequest(r.Context(), req)
	h.write(w, resp, err)
}

// verifyDevice resolves the user code typed on the verification page
func (h *handlers) verifyDevice(w http.ResponseWriter, r *http.Request) {
	userID, err := utilities.GetUser(r.Context())
	if err != nil {
		h.write(w, nil, oauth.AccessDenied("The resource owner is not authenticated"))
		return
	}
	userCode := r.PostFormValue("user_code")
	if userCode == "" {
		h.write(w, nil, oauth.InvalidRequest("user_code", ""))
		return
	}
	approved := r.PostFormValue("decision") != "deny"
	if err := h.srv.CompleteDeviceAuthorization(r.Context(), userCode, userID, approved); err != nil {
		h.write(w, nil, err)
		return
	}
	status := "approved"
	if !approved {
		status = "denied"
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": status})
}

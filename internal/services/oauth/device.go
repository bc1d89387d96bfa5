package oauth

import (
	"context"
	"log/slog"
	"net/http"
)

func (s *Server) deviceGrant() (DeviceGrant, bool) {
	for _, g := range s.grants {
		if dg, ok := g.(DeviceGrant); ok {
			return dg, true
		}
	}
	return nil, false
}

// RespondToDeviceAuthorizationRequest issues a device code and user code pair
func (s *Server) RespondToDeviceAuthorizationRequest(ctx context.Context, r *http.Request) (*Response, error) {
	const op = "oauth.Server.RespondToDeviceAuthorizationRequest"
	log := s.log.With(slog.String("op", op))

	dg, ok := s.deviceGrant()
	if !ok {
		return nil, s.reject(log, UnsupportedGrantType())
	}
	body, err := dg.RespondToDeviceAuthorizationRequest(ctx, r)
	if err != nil {
		return nil, s.reject(log, err)
	}
	log.Info("device code issued")
	return jsonResponse(http.StatusOK, body)
}

// CompleteDeviceAuthorization is called by the host once the user approved or denied userCode
func (s *Server) CompleteDeviceAuthorization(ctx context.Context, userCode string, userID string, approved bool) error {
	const op = "oauth.Server.CompleteDeviceAuthorization"
	log := s.log.With(slog.String("op", op))

	dg, ok := s.deviceGrant()
	if !ok {
		return s.reject(log, UnsupportedGrantType())
	}
	if err := dg.CompleteDeviceAuthorization(ctx, userCode, userID, approved); err != nil {
		return s.reject(log, err)
	}
	log.Info("device authorization resolved", slog.Bool("approved", approved))
	return nil
}

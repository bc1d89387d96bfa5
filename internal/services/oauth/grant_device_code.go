package oauth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"ssoengine/internal/domain/models"
	"ssoengine/internal/lib/random"
	"ssoengine/internal/storage"
)

// DeviceGrant is implemented by grants served from the device authorization endpoint
type DeviceGrant interface {
	Grant
	RespondToDeviceAuthorizationRequest(ctx context.Context, r *http.Request) (*DeviceAuthorizationResponse, error)
	CompleteDeviceAuthorization(ctx context.Context, userCode string, userID string, approved bool) error
}

// deviceCodeGrant implements RFC 8628: the device polls while the user approves elsewhere
type deviceCodeGrant struct {
	*engine
}

func (g *deviceCodeGrant) Identifier() GrantType {
	return GrantDeviceCode
}

func (g *deviceCodeGrant) CanRespondToAccessTokenRequest(r *http.Request) bool {
	return bodyParam(r, "grant_type") == string(g.Identifier())
}

func (g *deviceCodeGrant) RespondToDeviceAuthorizationRequest(
	ctx context.Context,
	r *http.Request,
) (*DeviceAuthorizationResponse, error) {
	client, err := g.authenticateClient(ctx, r, g.Identifier())
	if err != nil {
		return nil, err
	}
	scopes, err := g.validateScopes(ctx, bodyParam(r, "scope"))
	if err != nil {
		return nil, err
	}

	now := g.now()
	code := &models.DeviceCode{
		VerificationURI: g.cfg.VerificationURI,
		ClientID:        client.ID,
		Scopes:          scopes,
		Status:          models.DeviceCodePending,
		Interval:        g.cfg.DevicePollInterval,
		ExpiresAt:       now.Add(g.cfg.DeviceCodeTTL),
	}
	// both the identifier and the user code must be unique, a collision on either retries
	if _, err := g.persistUnique(ctx, func(id string) error {
		userCode, err := random.UserCode()
		if err != nil {
			return err
		}
		code.ID = id
		code.UserCode = userCode
		return g.DeviceCodes.SaveDeviceCode(ctx, code)
	}); err != nil {
		return nil, err
	}

	sealed, err := g.Encrypter.Seal(deviceCodePayload{
		ClientID:        code.ClientID,
		DeviceCodeID:    code.ID,
		Scopes:          models.ScopeIDs(code.Scopes),
		UserCode:        code.UserCode,
		VerificationURI: code.VerificationURI,
		ExpireTime:      code.ExpiresAt.Unix(),
	})
	if err != nil {
		return nil, ServerError(err)
	}

	complete := makeRedirectURI(code.VerificationURI, url.Values{"user_code": {code.UserCode}}, false)
	return &DeviceAuthorizationResponse{
		DeviceCode:              sealed,
		UserCode:                code.UserCode,
		VerificationURI:         code.VerificationURI,
		VerificationURIComplete: complete,
		ExpiresIn:               int64(g.cfg.DeviceCodeTTL / time.Second),
		Interval:                int64(code.Interval / time.Second),
	}, nil
}

// CompleteDeviceAuthorization records the user's decision for a pending device code
func (g *deviceCodeGrant) CompleteDeviceAuthorization(ctx context.Context, userCode string, userID string, approved bool) error {
	if userID == "" {
		return ServerError(errors.New("an authenticated user must complete the device authorization"))
	}
	code, err := g.DeviceCodes.DeviceCodeByUserCode(ctx, random.NormalizeUserCode(userCode))
	if err != nil {
		if errors.Is(err, storage.ErrDeviceCodeNotFound) {
			return InvalidGrant("Unknown user code")
		}
		return ServerError(err)
	}
	if code.Revoked || !g.now().Before(code.ExpiresAt) {
		return ExpiredToken()
	}
	if code.Status != models.DeviceCodePending {
		return InvalidGrant("Device code has already been resolved")
	}
	if err := g.DeviceCodes.ResolveDeviceCode(ctx, code.ID, userID, approved); err != nil {
		if errors.Is(err, storage.ErrTokenConsumed) {
			return InvalidGrant("Device code has already been resolved")
		}
		return ServerError(err)
	}
	return nil
}

// RespondToAccessTokenRequest handles one poll. Every poll updates the last poll time;
// polling inside the interval yields slow_down whatever the approval state is.
func (g *deviceCodeGrant) RespondToAccessTokenRequest(
	ctx context.Context,
	r *http.Request,
	accessTokenTTL time.Duration,
) (*TokenResponse, error) {
	const op = "oauth.deviceCodeGrant.RespondToAccessTokenRequest"
	log := g.log.With(slog.String("op", op))

	client, err := g.authenticateClient(ctx, r, g.Identifier())
	if err != nil {
		return nil, err
	}

	encrypted := bodyParam(r, "device_code")
	if encrypted == "" {
		return nil, InvalidRequest("device_code", "")
	}
	var payload deviceCodePayload
	if err := g.Encrypter.Open(encrypted, &payload); err != nil {
		return nil, InvalidGrant("Cannot decrypt the device code")
	}
	if payload.ClientID != client.ID {
		return nil, InvalidGrant("Device code was not issued to this client")
	}

	code, err := g.DeviceCodes.DeviceCode(ctx, payload.DeviceCodeID)
	if err != nil {
		if errors.Is(err, storage.ErrDeviceCodeNotFound) {
			return nil, InvalidGrant("Device code has been revoked")
		}
		return nil, ServerError(err)
	}

	now := g.now()
	lastPolled, err := g.DeviceCodes.TouchDeviceCode(ctx, code.ID, now)
	if err != nil {
		if errors.Is(err, storage.ErrDeviceCodeNotFound) {
			return nil, InvalidGrant("Device code has been revoked")
		}
		return nil, ServerError(err)
	}

	if code.Revoked {
		return nil, InvalidGrant("Device code has been revoked")
	}
	if expired(payload.ExpireTime, now) || !now.Before(code.ExpiresAt) {
		if err := g.DeviceCodes.RevokeDeviceCode(ctx, code.ID); err != nil {
			return nil, ServerError(err)
		}
		return nil, ExpiredToken()
	}
	if !lastPolled.IsZero() && now.Before(lastPolled.Add(code.Interval)) {
		log.Info("device polling too fast", slog.String("client_id", client.ID))
		return nil, SlowDown()
	}

	switch code.Status {
	case models.DeviceCodePending:
		return nil, AuthorizationPending()
	case models.DeviceCodeDenied:
		return nil, AccessDenied("The user denied the device authorization request")
	case models.DeviceCodeApproved:
	default:
		return nil, ServerError(errors.New("unknown device code status " + string(code.Status)))
	}

	if err := g.DeviceCodes.ConsumeDeviceCode(ctx, code.ID); err != nil {
		if errors.Is(err, storage.ErrTokenConsumed) || errors.Is(err, storage.ErrDeviceCodeNotFound) {
			return nil, InvalidGrant("Device code has been revoked")
		}
		return nil, ServerError(err)
	}

	scopes, err := g.resolveScopes(ctx, payload.Scopes)
	if err != nil {
		return nil, err
	}
	scopes, err = g.finalizeScopes(ctx, scopes, g.Identifier(), client, code.UserID)
	if err != nil {
		return nil, err
	}
	return g.issueTokenPair(ctx, accessTokenTTL, client, code.UserID, scopes, true)
}

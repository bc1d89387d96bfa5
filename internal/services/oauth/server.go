package oauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/lestrrat-go/jwx/jwk"

	"ssoengine/internal/lib/jwt"
	"ssoengine/internal/lib/random"
	"ssoengine/internal/services/oauth/interfaces"
)

// Grant is a token endpoint strategy
type Grant interface {
	Identifier() GrantType
	CanRespondToAccessTokenRequest(r *http.Request) bool
	RespondToAccessTokenRequest(ctx context.Context, r *http.Request, accessTokenTTL time.Duration) (*TokenResponse, error)
}

// Encrypter seals payloads into opaque tokens
type Encrypter interface {
	Seal(payload any) (string, error)
	Open(token string, dst any) error
}

// Observer is notified of issued tokens and rejected requests
type Observer interface {
	TokenIssued(grant string)
	RequestRejected(code string)
}

type nopObserver struct{}

func (nopObserver) TokenIssued(string)     {}
func (nopObserver) RequestRejected(string) {}

// Deps are the collaborators the engine needs.
// Users may be nil when the password grant is disabled, Observer may be nil.
type Deps struct {
	Log           *slog.Logger
	Clients       interfaces.ClientRepository
	Scopes        interfaces.ScopeRepository
	AccessTokens  interfaces.AccessTokenRepository
	RefreshTokens interfaces.RefreshTokenRepository
	AuthCodes     interfaces.AuthCodeRepository
	DeviceCodes   interfaces.DeviceCodeRepository
	Users         interfaces.UserRepository
	Signer        jwt.Signer
	Encrypter     Encrypter
	Observer      Observer
}

// Option customizes a Server at construction
type Option func(*Server)

// WithGrant appends a custom grant after the configured ones
func WithGrant(g Grant) Option {
	return func(s *Server) { s.extra = append(s.extra, g) }
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// WithIdentifierGenerator replaces the random identifier source
func WithIdentifierGenerator(gen func() (string, error)) Option {
	return func(s *Server) { s.newID = gen }
}

// engine is the state shared by every grant
type engine struct {
	Deps
	cfg      Config
	log      *slog.Logger
	now      func() time.Time
	newID    func() (string, error)
	verifier *jwt.Verifier
}

// Server is the authorization server facade
type Server struct {
	*engine
	grants []Grant
	extra  []Grant
	byType map[GrantType]Grant
}

// NewServer validates deps and builds the dispatch table from cfg.Grants
func NewServer(cfg Config, deps Deps, opts ...Option) (*Server, error) {
	const op = "oauth.NewServer"

	if deps.Clients == nil || deps.Scopes == nil || deps.AccessTokens == nil {
		return nil, fmt.Errorf("%s: clients, scopes and access token repositories are required", op)
	}
	if deps.Signer == nil || deps.Encrypter == nil {
		return nil, fmt.Errorf("%s: signer and encrypter are required", op)
	}
	if deps.Log == nil {
		deps.Log = slog.Default()
	}
	if deps.Observer == nil {
		deps.Observer = nopObserver{}
	}

	s := &Server{
		engine: &engine{
			Deps:  deps,
			cfg:   cfg.withDefaults(),
			log:   deps.Log,
			now:   time.Now,
			newID: random.Identifier,
		},
		byType: make(map[GrantType]Grant),
	}
	for _, opt := range opts {
		opt(s)
	}

	verifierOpts := []jwt.VerifierOption{jwt.WithTimeFunc(s.now)}
	if s.cfg.Issuer != "" {
		verifierOpts = append(verifierOpts, jwt.WithIssuer(s.cfg.Issuer))
	}
	s.verifier = jwt.NewVerifier(deps.Signer, verifierOpts...)

	for _, gt := range s.cfg.Grants {
		g, err := s.builtinGrant(gt)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		s.register(g)
	}
	for _, g := range s.extra {
		s.register(g)
	}
	return s, nil
}

func (s *Server) builtinGrant(gt GrantType) (Grant, error) {
	switch gt {
	case GrantClientCredentials:
		return &clientCredentialsGrant{engine: s.engine}, nil
	case GrantPassword:
		if s.Users == nil {
			return nil, errors.New("password grant requires a user repository")
		}
		return &passwordGrant{engine: s.engine}, nil
	case GrantAuthorizationCode:
		if s.AuthCodes == nil || s.RefreshTokens == nil {
			return nil, errors.New("authorization code grant requires auth code and refresh token repositories")
		}
		return &authCodeGrant{engine: s.engine}, nil
	case GrantRefreshToken:
		if s.RefreshTokens == nil {
			return nil, errors.New("refresh token grant requires a refresh token repository")
		}
		return &refreshTokenGrant{engine: s.engine}, nil
	case GrantImplicit:
		return &implicitGrant{engine: s.engine}, nil
	case GrantDeviceCode:
		if s.DeviceCodes == nil {
			return nil, errors.New("device code grant requires a device code repository")
		}
		return &deviceCodeGrant{engine: s.engine}, nil
	default:
		return nil, fmt.Errorf("unknown grant type %q", gt)
	}
}

func (s *Server) register(g Grant) {
	if _, ok := s.byType[g.Identifier()]; ok {
		return
	}
	s.grants = append(s.grants, g)
	s.byType[g.Identifier()] = g
}

// EnabledGrant returns the registered grant for gt
func (s *Server) EnabledGrant(gt GrantType) (Grant, bool) {
	g, ok := s.byType[gt]
	return g, ok
}

// RespondToAccessTokenRequest runs the first grant that accepts r
func (s *Server) RespondToAccessTokenRequest(ctx context.Context, r *http.Request) (*Response, error) {
	const op = "oauth.Server.RespondToAccessTokenRequest"
	log := s.log.With(slog.String("op", op))

	for _, g := range s.grants {
		if !g.CanRespondToAccessTokenRequest(r) {
			continue
		}
		gt := g.Identifier()
		tr, err := g.RespondToAccessTokenRequest(ctx, r, s.cfg.accessTokenTTL(gt))
		if err != nil {
			return nil, s.reject(log.With(slog.String("grant", string(gt))), err)
		}
		log.Info("access token issued", slog.String("grant", string(gt)))
		s.Observer.TokenIssued(string(gt))
		return jsonResponse(http.StatusOK, tr)
	}
	return nil, s.reject(log, UnsupportedGrantType())
}

// PublicKeys returns the JWK set resource servers verify access tokens with
func (s *Server) PublicKeys(ctx context.Context) (jwk.Set, error) {
	set, err := s.Signer.PublicKeys(ctx)
	if err != nil {
		return nil, ServerError(err)
	}
	return set, nil
}

// reject logs err at a level matching its code and returns it as *Error
func (e *engine) reject(log *slog.Logger, err error) *Error {
	oerr := AsError(err)
	e.Observer.RequestRejected(string(oerr.Code))
	if oerr.Code == ErrServerError {
		log.Error("request failed", slog.String("error", fmt.Sprint(errors.Unwrap(oerr))))
		return oerr
	}
	log.Info("request rejected",
		slog.String("error", string(oerr.Code)),
		slog.String("hint", oerr.Hint),
	)
	return oerr
}

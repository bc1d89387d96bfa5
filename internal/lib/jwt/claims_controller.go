package jwt

// ClaimsController providing token's claims validation
type ClaimsController interface {
	IsClaimsValid(claims *AccessClaims) error
}

// RequiredClaimsController rejects tokens missing any claim the engine relies on
type RequiredClaimsController struct{}

// NewClaimsController creates new instance of RequiredClaimsController
func NewClaimsController() *RequiredClaimsController {
	return &RequiredClaimsController{}
}

// IsClaimsValid checks if provided token's claims are valid
func (c *RequiredClaimsController) IsClaimsValid(claims *AccessClaims) error {
	if claims == nil {
		return ErrTokenClaimsIncorrect
	}
	if claims.ID == "" || claims.Subject == "" || claims.ClientID() == "" {
		return ErrTokenClaimsIncorrect
	}
	if claims.ExpiresAt == nil || claims.IssuedAt == nil {
		return ErrTokenClaimsIncorrect
	}
	return nil
}

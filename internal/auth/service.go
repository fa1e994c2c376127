package auth

import (
	"context"
	"errors"
)

// ErrInvalidToken is returned when an identity token cannot be validated.
var ErrInvalidToken = errors.New("invalid token")

// Validator is the authentication collaborator used by the sync layer.
type Validator struct {
	jwtConfig *JWTConfig
}

// NewValidator creates a validator for tokens signed with jwtConfig.
func NewValidator(jwtConfig *JWTConfig) *Validator {
	return &Validator{jwtConfig: jwtConfig}
}

// ValidateIdentity returns the user id carried by token.
func (v *Validator) ValidateIdentity(_ context.Context, token string) (string, error) {
	claims, err := ValidateToken(v.jwtConfig, token)
	if err != nil {
		return "", errors.Join(ErrInvalidToken, err)
	}
	return claims.UserID(), nil
}

// ValidateToken validates a token and returns its claims.
func (v *Validator) ValidateToken(token string) (*Claims, error) {
	return ValidateToken(v.jwtConfig, token)
}

// IssueToken mints a token for userID.
func (v *Validator) IssueToken(userID, name string) (string, error) {
	return GenerateToken(v.jwtConfig, userID, name)
}

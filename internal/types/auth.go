package types

import (
	"github.com/go-playground/validator/v10"
)

// validate is shared by every request type; validator caches struct metadata.
var validate = validator.New()

// AuthenticateRequest exchanges the extension's client secret for a token.
type AuthenticateRequest struct {
	ClientSecret string `json:"client_secret" validate:"required"`
}

// TokenResponse is returned by a successful authentication.
type TokenResponse struct {
	Token string `json:"token"`
}

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// Validate validates the AuthenticateRequest using the validator.
func (r *AuthenticateRequest) Validate() error {
	return validate.Struct(r)
}

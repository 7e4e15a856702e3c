package config

import "errors"

// DefaultJWTExpirationHours is the lifetime of extension tokens.
const DefaultJWTExpirationHours = 1

// JWTConfig configures the tokens handed to the browser extension.
// JWT_SECRET_KEY takes precedence over JWT_SECRET.
type JWTConfig struct {
	Secret          string
	ExpirationHours int
}

func (c *JWTConfig) validate() error {
	var errs []error
	if c.Secret == "" {
		errs = append(errs, errors.New("JWT_SECRET_KEY is required but not set"))
	}
	if c.ExpirationHours < 1 {
		errs = append(errs, errors.New("JWT_EXPIRATION_HOURS must be at least 1"))
	}
	return errors.Join(errs...)
}

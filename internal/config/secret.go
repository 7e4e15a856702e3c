package config

import (
	"crypto/subtle"
	"fmt"
	"os"
	"strconv"

	"golang.org/x/crypto/bcrypt"
)

// DefaultBcryptCost is used by HashSecret when BCRYPT_COST is unset.
const DefaultBcryptCost = 12

// Validate checks the settings the HTTP server needs to issue tokens.
func (c *AuthConfig) Validate() error {
	if c.ExtensionSecret == "" && c.ExtensionSecretHash == "" {
		return fmt.Errorf("EXTENSION_SECRET or EXTENSION_SECRET_HASH is required but not set")
	}
	if c.ExtensionSecretHash != "" {
		if _, err := bcrypt.Cost([]byte(c.ExtensionSecretHash)); err != nil {
			return fmt.Errorf("invalid EXTENSION_SECRET_HASH: %w", err)
		}
	}
	return c.JWT.validate()
}

// VerifyClientSecret reports whether secret matches the configured extension secret.
// A bcrypt hash takes precedence over the plain secret.
func (c *AuthConfig) VerifyClientSecret(secret string) bool {
	if secret == "" {
		return false
	}
	if c.ExtensionSecretHash != "" {
		return bcrypt.CompareHashAndPassword([]byte(c.ExtensionSecretHash), []byte(secret)) == nil
	}
	if c.ExtensionSecret == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(secret), []byte(c.ExtensionSecret)) == 1
}

// BcryptCostFromEnv reads BCRYPT_COST (default: 12).
func BcryptCostFromEnv() (int, error) {
	costStr := os.Getenv("BCRYPT_COST")
	if costStr == "" {
		return DefaultBcryptCost, nil
	}
	cost, err := strconv.Atoi(costStr)
	if err != nil {
		return 0, fmt.Errorf("invalid BCRYPT_COST: %v", err)
	}
	return cost, nil
}

// HashSecret hashes a client secret for use as EXTENSION_SECRET_HASH.
func HashSecret(secret string, cost int) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("secret cannot be empty")
	}
	if cost < 10 || cost > 14 {
		return "", fmt.Errorf("bcrypt cost out of range: %d (must be 10-14)", cost)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash secret: %w", err)
	}
	return string(hash), nil
}

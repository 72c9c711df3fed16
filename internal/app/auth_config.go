package app

import (
	"strings"

	"github.com/rentwise/rentwise/internal/auth"
)

const defaultIssuer = "rentwise"

// JWTServiceConfig converts AuthConfig into the parameters expected by the JWT service.
func (c AuthConfig) JWTServiceConfig() auth.JWTConfig {
	ttl := c.JWT.TTL
	if ttl <= 0 {
		ttl = auth.DefaultAccessTokenTTL
	}

	issuer := strings.TrimSpace(c.JWT.Issuer)
	if issuer == "" {
		issuer = defaultIssuer
	}

	return auth.JWTConfig{
		Secret:         c.JWT.Secret,
		Issuer:         issuer,
		AccessTokenTTL: ttl,
	}
}

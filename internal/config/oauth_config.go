package config

import "time"

const defaultTokenURL = "https://oauth.platform.intuit.com/oauth2/v1/tokens/bearer"

type OAuthConfig interface {
	GetClientID() string
	GetClientSecret() string
	GetTokenURL() string
	GetTokenSafetyMargin() time.Duration
}

type OAuth struct{}

var _ OAuthConfig = OAuth{}

func (OAuth) GetClientID() string {
	return GetEnv("SYNC_CLIENT_ID", "")
}

func (OAuth) GetClientSecret() string {
	return GetEnv("SYNC_CLIENT_SECRET", "")
}

func (OAuth) GetTokenURL() string {
	return GetEnv("SYNC_TOKEN_URL", defaultTokenURL)
}

// GetTokenSafetyMargin is how long before the access token's expiry a refresh is forced.
func (OAuth) GetTokenSafetyMargin() time.Duration {
	return GetEnvDuration("SYNC_TOKEN_SAFETY_MARGIN", 60*time.Second)
}

package models

// User is a gateway client's authenticated identity, issued a JWT or
// matched to a static API key.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}

// OAuthToken is one OAuth credential set.
type OAuthToken struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresAtMs  int64  `json:"expiresAtMs"`
	Label        string `json:"label,omitempty"`
}

// ProviderAuth is the per-provider credential set: zero or more named
// accounts, an optional legacy single OAuth, and an optional API key.
type ProviderAuth struct {
	APIKey   string       `json:"apiKey,omitempty"`
	OAuth    *OAuthToken  `json:"oauth,omitempty"`
	Accounts []OAuthToken `json:"accounts,omitempty"`
}

// OAuthTokenPrefix is the prefix that identifies an OAuth-issued access
// token as opposed to a raw API key.
const OAuthTokenPrefix = "oauth_"

// IsOAuthToken reports whether t is an OAuth-issued token.
func IsOAuthToken(t string) bool {
	return len(t) >= len(OAuthTokenPrefix) && t[:len(OAuthTokenPrefix)] == OAuthTokenPrefix
}

// AuthFile is the on-disk, versioned auth document.
type AuthFile struct {
	Version     int                     `json:"version"`
	Providers   map[string]ProviderAuth `json:"providers"`
	Services    map[string]ProviderAuth `json:"services,omitempty"`
	Google      *ProviderAuth           `json:"google,omitempty"`
	LastUpdated string                  `json:"lastUpdated,omitempty"`
}

// CurrentAuthVersion is the only version this implementation understands;
// any other value is treated as missing.
const CurrentAuthVersion = 1

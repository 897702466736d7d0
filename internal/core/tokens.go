package core

import "time"

// TokenSet holds the vendor credentials shared by every outbound call.
// There is exactly one per process, owned by the auth manager.
type TokenSet struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  *time.Time // from the token's exp claim, else expiresIn
	RefreshExpiresAt *time.Time // nil means the refresh token never expires
	UpdatedAt        time.Time
}

// HasAccessToken reports whether the set can be used for vendor calls at all.
func (t TokenSet) HasAccessToken() bool {
	return t.AccessToken != ""
}

// HasRefreshToken reports whether a refresh can be attempted.
func (t TokenSet) HasRefreshToken() bool {
	return t.RefreshToken != ""
}

// IsEmpty reports whether no credential is present.
func (t TokenSet) IsEmpty() bool {
	return t.AccessToken == "" && t.RefreshToken == ""
}

// Clone returns a copy that shares no pointers with t.
func (t TokenSet) Clone() TokenSet {
	out := t
	if t.AccessExpiresAt != nil {
		v := *t.AccessExpiresAt
		out.AccessExpiresAt = &v
	}
	if t.RefreshExpiresAt != nil {
		v := *t.RefreshExpiresAt
		out.RefreshExpiresAt = &v
	}
	return out
}

// TokenState is the lifecycle state of the access token.
type TokenState string

const (
	TokenStateValid      TokenState = "valid"
	TokenStateNearExpiry TokenState = "near_expiry"
	TokenStateRefreshing TokenState = "refreshing"
	TokenStateExpired    TokenState = "expired"
)

// TokenStatus is the observability snapshot served by the token status endpoint.
type TokenStatus struct {
	HasAccessToken               bool       `json:"hasAccessToken"`
	HasRefreshToken              bool       `json:"hasRefreshToken"`
	IsExpired                    bool       `json:"isExpired"`
	IsRefreshTokenExpired        bool       `json:"isRefreshTokenExpired"`
	ExpiryTime                   *time.Time `json:"expiryTime"`
	ExpiresInSeconds             *int64     `json:"expiresInSeconds"`
	ExpiresInMinutes             *int64     `json:"expiresInMinutes"`
	RefreshTokenExpiryTime       *time.Time `json:"refreshTokenExpiryTime"`
	RefreshTokenExpiresInMinutes *int64     `json:"refreshTokenExpiresInMinutes"`
	State                        TokenState `json:"state"`
	LastUpdated                  *time.Time `json:"lastUpdated"`
	APIInitialized               bool       `json:"apiInitialized"`
}

// RefreshResult is what the vendor token endpoint returns on success.
type RefreshResult struct {
	AccessToken  string
	RefreshToken string // empty when the vendor did not rotate it
	ExpiresIn    int64  // seconds, zero if not sent
	// RefreshExpiresIn is seconds until the refresh token expires, zero if unknown.
	RefreshExpiresIn int64
}

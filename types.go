package authcore

import (
	"context"
	"time"

	"github.com/MrEthical07/authcore/jwt"
)

// TokenType is the OAuth token_type reported for access tokens.
const TokenType = "Bearer"

// TokenPair is the result of Login and Refresh. RefreshToken is the only
// copy of the raw refresh token; the engine keeps just its hash.
type TokenPair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	ExpiresIn    int64     `json:"expires_in"`
	ExpiresAt    time.Time `json:"expires_at"`
	// RefreshExpiresAt is the absolute expiry of RefreshToken.
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// Claims is the verified access-token payload returned by Engine.Verify.
type Claims = jwt.Claims

// UserRecord is the account state the engine needs to mint access tokens.
type UserRecord struct {
	UserID string
	Email  string
	Role   string
	// Active false makes Refresh revoke every token of the user.
	Active bool
}

// UserProvider is implemented by the embedding application to expose its
// user store. The engine calls it on every refresh to pick up email and role
// changes and to reject deactivated accounts.
type UserProvider interface {
	GetUser(ctx context.Context, userID string) (UserRecord, error)
}

// UserProviderFunc adapts a function to UserProvider.
type UserProviderFunc func(ctx context.Context, userID string) (UserRecord, error)

// GetUser calls f.
func (f UserProviderFunc) GetUser(ctx context.Context, userID string) (UserRecord, error) {
	return f(ctx, userID)
}

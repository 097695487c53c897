package classify

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// tokenRefreshBuffer is the time before token expiration to trigger a refresh.
const tokenRefreshBuffer = 5 * time.Minute

// Credential applies authentication to outbound oracle requests.
type Credential interface {
	// Apply adds authentication to the HTTP request.
	Apply(ctx context.Context, req *http.Request) error
}

// StaticTokenCredential implements bearer authentication with a fixed token.
type StaticTokenCredential struct {
	token string
}

// NewStaticTokenCredential creates a credential that sends the given token
// as an Authorization bearer header.
func NewStaticTokenCredential(token string) *StaticTokenCredential {
	return &StaticTokenCredential{token: token}
}

// Apply adds the bearer token to the request header.
func (c *StaticTokenCredential) Apply(_ context.Context, req *http.Request) error {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return nil
}

// ClientCredentialsCredential implements OAuth2 client-credentials
// authentication. Tokens are cached and refreshed shortly before expiry.
type ClientCredentialsCredential struct {
	tokenSource oauth2.TokenSource
	mu          sync.RWMutex
	cachedToken *oauth2.Token
}

// NewClientCredentialsCredential creates a credential that exchanges client
// credentials for bearer tokens at the given token URL.
func NewClientCredentialsCredential(ctx context.Context, clientID, clientSecret, tokenURL string, scopes ...string) *ClientCredentialsCredential {
	config := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     tokenURL,
		Scopes:       scopes,
	}
	return &ClientCredentialsCredential{
		tokenSource: config.TokenSource(ctx),
	}
}

// Apply adds the OAuth2 token to the request.
func (c *ClientCredentialsCredential) Apply(ctx context.Context, req *http.Request) error {
	token, err := c.getToken(ctx)
	if err != nil {
		return fmt.Errorf("failed to get oracle token: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	return nil
}

// getToken retrieves the current OAuth2 token, refreshing if necessary.
func (c *ClientCredentialsCredential) getToken(_ context.Context) (*oauth2.Token, error) {
	c.mu.RLock()
	if c.cachedToken != nil && c.cachedToken.Valid() {
		token := c.cachedToken
		c.mu.RUnlock()
		return token, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	// Double-check after acquiring write lock
	if c.cachedToken != nil && c.cachedToken.Valid() {
		return c.cachedToken, nil
	}

	token, err := c.tokenSource.Token()
	if err != nil {
		return nil, err
	}

	// Cache only tokens that outlive the refresh buffer
	if token.Expiry.After(time.Now().Add(tokenRefreshBuffer)) {
		c.cachedToken = token
	}

	return token, nil
}

package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/dhowell/mailtriage/internal/config"
)

// Scopes Azure AD injects itself; requesting them explicitly is an error.
var reservedScopes = map[string]bool{
	"openid":         true,
	"profile":        true,
	"offline_access": true,
}

// AuthError means token acquisition failed for one account. Other
// accounts keep running.
type AuthError struct {
	Account string
	Err     error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth failed for %s: %v", e.Account, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// Connect builds an authenticated Client for the account described by
// the effective config. Application mode uses the client-credentials
// grant (app-only tokens cannot use /me, so the client is scoped to
// /users/{upn}); delegated mode refreshes a cached token and talks to
// /me.
func Connect(ctx context.Context, eff config.Effective) (*Client, error) {
	switch eff.AuthMode {
	case config.AuthModeApplication:
		return connectApplication(ctx, eff)
	case config.AuthModeDelegated:
		return connectDelegated(ctx, eff)
	default:
		return nil, &AuthError{Account: eff.Email, Err: fmt.Errorf("unknown auth_mode %q", eff.AuthMode)}
	}
}

func connectApplication(ctx context.Context, eff config.Effective) (*Client, error) {
	secret := os.Getenv(eff.ClientSecretEnv)
	if secret == "" {
		return nil, &AuthError{
			Account: eff.Email,
			Err:     fmt.Errorf("client secret env var %s is not set", eff.ClientSecretEnv),
		}
	}

	cc := clientcredentials.Config{
		ClientID:     eff.ClientID,
		ClientSecret: secret,
		TokenURL:     tokenURL(eff.AuthorityBase, eff.TenantID),
		// The .default scope set represents the app permissions
		// granted in the portal.
		Scopes: []string{"https://graph.microsoft.com/.default"},
	}
	if _, err := cc.Token(ctx); err != nil {
		return nil, &AuthError{Account: eff.Email, Err: err}
	}
	return NewClient(cc.Client(ctx), eff.Email), nil
}

func connectDelegated(ctx context.Context, eff config.Effective) (*Client, error) {
	conf := &oauth2.Config{
		ClientID: eff.ClientID,
		Endpoint: oauth2.Endpoint{
			AuthURL:  authorizeURL(eff.AuthorityBase, eff.TenantID),
			TokenURL: tokenURL(eff.AuthorityBase, eff.TenantID),
		},
		Scopes: cleanScopes(eff.DelegatedScopes),
	}

	tokenPath := tokenCachePath(eff.TokenCacheDir, eff.Email)
	token, err := loadCachedToken(tokenPath)
	if err != nil {
		return nil, &AuthError{
			Account: eff.Email,
			Err:     fmt.Errorf("no cached delegated token (%v); provision %s first", err, tokenPath),
		}
	}

	ts := conf.TokenSource(ctx, token)
	fresh, err := ts.Token()
	if err != nil {
		return nil, &AuthError{Account: eff.Email, Err: fmt.Errorf("refresh token: %w", err)}
	}

	// Persist refreshed tokens so the next run skips the refresh
	// round-trip. Not fatal when it fails.
	if fresh.AccessToken != token.AccessToken {
		if saveErr := saveCachedToken(tokenPath, fresh); saveErr != nil {
			fmt.Fprintf(os.Stderr, "warning: could not save refreshed token: %v\n", saveErr)
		}
	}

	return NewClient(oauth2.NewClient(ctx, ts), "me"), nil
}

func cleanScopes(scopes []string) []string {
	out := make([]string, 0, len(scopes))
	for _, s := range scopes {
		if reservedScopes[strings.ToLower(s)] {
			continue
		}
		out = append(out, s)
	}
	return out
}

func tokenURL(authorityBase, tenant string) string {
	return strings.TrimSuffix(authorityBase, "/") + "/" + tenant + "/oauth2/v2.0/token"
}

func authorizeURL(authorityBase, tenant string) string {
	return strings.TrimSuffix(authorityBase, "/") + "/" + tenant + "/oauth2/v2.0/authorize"
}

func tokenCachePath(dir, account string) string {
	name := strings.ReplaceAll(strings.ToLower(account), "@", "_at_")
	return filepath.Join(dir, name+".json")
}

// cachedToken is the token file layout on disk.
type cachedToken struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	Expiry       time.Time `json:"expiry"`
}

func loadCachedToken(path string) (*oauth2.Token, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var ct cachedToken
	if err := json.Unmarshal(data, &ct); err != nil {
		return nil, fmt.Errorf("parse token file: %w", err)
	}
	return &oauth2.Token{
		AccessToken:  ct.AccessToken,
		RefreshToken: ct.RefreshToken,
		TokenType:    "Bearer",
		Expiry:       ct.Expiry,
	}, nil
}

func saveCachedToken(path string, token *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cachedToken{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		Expiry:       token.Expiry,
	}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/vstrealm/reviewd/internal/apperror"
)

// googleUserInfoURL is Google's profile endpoint for the authenticated
// principal. Overridable in tests (see google_test.go).
const googleUserInfoURL = "https://www.googleapis.com/oauth2/v1/userinfo"

// providerTimeout bounds each round-trip to Google. A hung provider call
// must fail the login request, not park it forever.
const providerTimeout = 10 * time.Second

// ProviderToken is the provider-side session returned by the authorization
// code exchange. It belongs to the Account link record, not to our own
// bearer tokens; the two lifetimes are independent.
type ProviderToken struct {
	AccessToken  string
	TokenType    string
	RefreshToken string // empty unless offline access was granted
	ExpiresAt    time.Time
}

// ProviderProfile is the portion of Google's userinfo response we care
// about. Google returns a larger object; we only unmarshal what we need.
type ProviderProfile struct {
	ID            string `json:"id"` // Google's subject id, stable across logins
	GivenName     string `json:"given_name"`
	FamilyName    string `json:"family_name"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"verified_email"`
	Picture       string `json:"picture"` // avatar URL, may be empty
}

// GoogleProvider wraps golang.org/x/oauth2 for the Google Authorization
// Code flow: redirect the user to Google, receive a short-lived code on the
// callback, exchange it server-to-server for an access token, then fetch
// the profile with that token.
//
// Every failure mode (transport error, non-200, unparsable body, timeout)
// is reported as apperror.ErrProviderUnavailable. The provider client never
// retries; retry policy, if any, belongs to the caller.
type GoogleProvider struct {
	config      *oauth2.Config
	client      *http.Client
	userInfoURL string
}

// NewGoogleProvider creates a GoogleProvider with the given OAuth app
// credentials. redirectURL must exactly match the authorized redirect URI
// configured in the Google console.
func NewGoogleProvider(clientID, clientSecret, redirectURL string) *GoogleProvider {
	return &GoogleProvider{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes:       []string{"openid", "profile", "email"},
			Endpoint:     google.Endpoint,
		},
		client:      &http.Client{Timeout: providerTimeout},
		userInfoURL: googleUserInfoURL,
	}
}

// AuthURL returns the consent-screen URL to redirect the user to. The state
// parameter is round-tripped through Google and verified on the callback.
func (p *GoogleProvider) AuthURL(state string) string {
	return p.config.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// Exchange trades an authorization code for a Google access token. This is
// the server-to-server half of the flow; the client secret never leaves
// this process.
func (p *GoogleProvider) Exchange(ctx context.Context, code string) (*ProviderToken, error) {
	ctx, cancel := context.WithTimeout(ctx, providerTimeout)
	defer cancel()

	tok, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: exchanging authorization code: %v", apperror.ErrProviderUnavailable, err)
	}
	if tok.AccessToken == "" {
		return nil, fmt.Errorf("%w: no access token in exchange response", apperror.ErrProviderUnavailable)
	}

	return &ProviderToken{
		AccessToken:  tok.AccessToken,
		TokenType:    tok.TokenType,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.Expiry,
	}, nil
}

// FetchProfile retrieves the authenticated principal's profile using a
// provider access token previously obtained via Exchange.
func (p *GoogleProvider) FetchProfile(ctx context.Context, accessToken string) (*ProviderProfile, error) {
	ctx, cancel := context.WithTimeout(ctx, providerTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: building userinfo request: %v", apperror.ErrProviderUnavailable, err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: calling userinfo endpoint: %v", apperror.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: userinfo endpoint returned status %d", apperror.ErrProviderUnavailable, resp.StatusCode)
	}

	var profile ProviderProfile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return nil, fmt.Errorf("%w: decoding userinfo response: %v", apperror.ErrProviderUnavailable, err)
	}

	if profile.ID == "" {
		return nil, fmt.Errorf("%w: userinfo response has no subject id", apperror.ErrProviderUnavailable)
	}

	return &profile, nil
}

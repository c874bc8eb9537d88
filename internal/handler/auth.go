package handler

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/rs/xid"

	"github.com/vstrealm/reviewd/internal/auth"
	"github.com/vstrealm/reviewd/internal/model"
	"github.com/vstrealm/reviewd/internal/service"
)

// AuthHandler exposes the identity manager over HTTP: local registration
// and login, the Google OAuth flow, token verification, and the
// current-user endpoints.
type AuthHandler struct {
	identity *service.IdentityService
	// Browser flows land here after an external login, with the session
	// token in the query string. Empty means respond with JSON instead.
	frontendRedirectURI string
	logger              *slog.Logger
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(identity *service.IdentityService, frontendRedirectURI string, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		identity:            identity,
		frontendRedirectURI: frontendRedirectURI,
		logger:              logger,
	}
}

type registerRequest struct {
	GivenName  string `json:"given_name"`
	FamilyName string `json:"family_name"`
	Email      string `json:"email"`
	Password   string `json:"password"`
}

// HandleRegister creates a local identity.
//
// HTTP: POST /auth/local/register
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	user, err := h.identity.Register(r.Context(), req.GivenName, req.FamilyName, req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, user)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// HandleLocalLogin authenticates an email/password pair and returns a
// session with a bearer token.
//
// HTTP: POST /auth/local/login
func (h *AuthHandler) HandleLocalLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	session, err := h.identity.LocalLogin(r.Context(), req.Email, req.Password)
	if err != nil {
		w.Header().Set("WWW-Authenticate", "Bearer")
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, session)
}

// HandleVerifyToken checks a token without starting a session.
//
// HTTP: GET /auth/local/verify-token/{token}
func (h *AuthHandler) HandleVerifyToken(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	if err := h.identity.VerifyToken(token); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "token is valid"})
}

// HandleGoogleLogin starts the Google OAuth flow.
//
// HTTP: GET /auth/google/login
//
// A random state value goes into a short-lived HttpOnly cookie and into
// the consent URL; the callback verifies the two match, which proves the
// callback was initiated here and not forged cross-site.
func (h *AuthHandler) HandleGoogleLogin(w http.ResponseWriter, r *http.Request) {
	state := xid.New().String()

	consentURL, err := h.identity.ExternalLoginURL(state)
	if err != nil {
		writeError(w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "oauth_state",
		Value:    state,
		Path:     "/",
		MaxAge:   600, // 10 minutes
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, consentURL, http.StatusTemporaryRedirect)
}

// HandleGoogleCallback completes the Google OAuth flow.
//
// HTTP: GET /auth/google/callback?code=xxx&state=yyy
//
// After the code exchange the browser is sent to the frontend redirect
// URI (or an explicit redirect_uri query override) carrying the session
// token in query parameters. With no redirect target configured, the
// session is returned as JSON, which is what API clients use.
func (h *AuthHandler) HandleGoogleCallback(w http.ResponseWriter, r *http.Request) {
	stateCookie, err := r.Cookie("oauth_state")
	if err != nil || stateCookie.Value == "" || r.URL.Query().Get("state") != stateCookie.Value {
		h.logger.Warn("google callback: state mismatch or missing state cookie")
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: "invalid OAuth state",
		})
		return
	}

	// The state is single-use.
	http.SetCookie(w, &http.Cookie{
		Name:   "oauth_state",
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		h.logger.Info("google callback: authorization denied", slog.String("error", errParam))
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{
			Error:   "authentication_failed",
			Message: "authorization was denied",
		})
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: "missing OAuth code",
		})
		return
	}

	session, err := h.identity.ExternalLoginComplete(r.Context(), code)
	if err != nil {
		writeError(w, err)
		return
	}

	redirectURI := r.URL.Query().Get("redirect_uri")
	if redirectURI == "" {
		redirectURI = h.frontendRedirectURI
	}
	if redirectURI == "" {
		writeJSON(w, http.StatusOK, session)
		return
	}

	params := url.Values{}
	params.Set("access_token", session.AccessToken)
	params.Set("token_type", session.TokenType)
	params.Set("expires_in", fmt.Sprint(session.ExpiresIn))
	params.Set("provider", string(session.Provider))
	http.Redirect(w, r, redirectURI+"?"+params.Encode(), http.StatusSeeOther)
}

// HandleCurrentUser returns the authenticated caller's profile.
//
// HTTP: GET /auth/user
// Auth: required
func (h *AuthHandler) HandleCurrentUser(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		// Unreachable behind RequireAuth, kept as a guard.
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "unauthenticated", Message: "authentication required"})
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// HandleActiveAccount returns the caller's Account link for a provider.
//
// HTTP: GET /auth/account?provider=google
// Auth: required. The provider defaults to the local realm.
func (h *AuthHandler) HandleActiveAccount(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "unauthenticated", Message: "authentication required"})
		return
	}

	provider := model.Provider(r.URL.Query().Get("provider"))
	if provider == "" {
		provider = model.ProviderLocal
	}

	account, err := h.identity.ActiveAccount(r.Context(), user.ID, provider)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, account)
}

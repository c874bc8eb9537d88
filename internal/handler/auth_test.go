package handler_test

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vstrealm/reviewd/internal/model"
	"github.com/vstrealm/reviewd/internal/service"
)

func TestRegisterEndpoint(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/auth/local/register", "", map[string]string{
		"given_name": "Grace", "family_name": "Hopper",
		"email": "Grace@Example.com", "password": "password123",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var user model.User
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&user))
	assert.Equal(t, "grace@example.com", user.Email)
	assert.NotContains(t, rec.Body.String(), "password", "the hash must never leave the server")

	// Duplicate email is a 409.
	rec = env.do(t, http.MethodPost, "/auth/local/register", "", map[string]string{
		"given_name": "G", "family_name": "H",
		"email": "grace@example.com", "password": "password456",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Malformed body is a 400.
	rec = env.do(t, http.MethodPost, "/auth/local/register", "", "not an object")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLoginEndpoint_BadCredentials(t *testing.T) {
	env := newTestEnv(t)
	env.loginTestUser(t, "known@example.com")

	for name, body := range map[string]map[string]string{
		"unknown email":  {"email": "unknown@example.com", "password": "password123"},
		"wrong password": {"email": "known@example.com", "password": "wrong"},
	} {
		t.Run(name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/auth/local/login", "", body)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))
		})
	}
}

func TestVerifyTokenEndpoint(t *testing.T) {
	env := newTestEnv(t)
	token := env.loginTestUser(t, "verify@example.com")

	rec := env.do(t, http.MethodGet, "/auth/local/verify-token/"+token, "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/auth/local/verify-token/not-a-token", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCurrentUserEndpoint(t *testing.T) {
	env := newTestEnv(t)
	token := env.loginTestUser(t, "me@example.com")

	rec := env.do(t, http.MethodGet, "/auth/user", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var user model.User
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&user))
	assert.Equal(t, "me@example.com", user.Email)

	rec = env.do(t, http.MethodGet, "/auth/user", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestActiveAccountEndpoint(t *testing.T) {
	env := newTestEnv(t)
	token := env.loginTestUser(t, "acct@example.com")

	// The login above linked a local Account; the provider defaults to
	// the local realm.
	rec := env.do(t, http.MethodGet, "/auth/account", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var account model.Account
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&account))
	assert.Equal(t, model.ProviderLocal, account.Provider)

	// No Google account was ever linked.
	rec = env.do(t, http.MethodGet, "/auth/account?provider=google", token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGoogleCallback_RejectsForgedState(t *testing.T) {
	env := newTestEnv(t)

	// No oauth_state cookie at all.
	rec := env.do(t, http.MethodGet, "/auth/google/callback?code=x&state=y", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "validation_error", resp["error"])
}

func TestSessionShape(t *testing.T) {
	env := newTestEnv(t)
	env.loginTestUser(t, "shape@example.com")

	rec := env.do(t, http.MethodPost, "/auth/local/login", "", map[string]string{
		"email": "shape@example.com", "password": "password123",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var session service.Session
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&session))
	assert.Equal(t, "bearer", session.TokenType)
	assert.Greater(t, session.ExpiresIn, 0)
	assert.Equal(t, model.ProviderLocal, session.Provider)
	require.NotNil(t, session.User)
	assert.Equal(t, "shape@example.com", session.User.Email)
}

package server

import (
	"bytes"
	"chatline/apperrors"
	"chatline/auth"
	"chatline/repositories"
	"chatline/runtime"
	"chatline/services"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"
)

type testStack struct {
	server *httptest.Server
	tokens *auth.TokenManager
}

func newTestStack(t *testing.T) testStack {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	log := slog.Default()
	registry := runtime.NewRegistry()
	router := runtime.NewRouter(log, registry, 64, time.Second, nil)

	tokens := auth.NewTokenManager("http-test-secret", time.Hour)
	groupService := services.NewGroupService(log, repositories.NewGroupRepository(db), router)
	messageService := services.NewMessageService(log, repositories.NewMessageRepository(db, log), groupService, router, nil, nil)
	authService := services.NewAuthService(log, repositories.NewUserRepository(db), tokens)

	gateway := NewGateway(log, registry, messageService, groupService, tokens, nil, 16)
	handlers := NewHandlers(log, authService, groupService, messageService)
	limiter := NewRateLimiter(1000, 1000)

	srv := httptest.NewServer(NewHTTPRouter(handlers, gateway, tokens, limiter, limiter, nil))
	t.Cleanup(srv.Close)
	return testStack{server: srv, tokens: tokens}
}

// do sends a JSON request with an optional bearer token and decodes the body.
func (s testStack) do(t *testing.T, method, path, token string, payload any) (int, map[string]any) {
	t.Helper()
	var body bytes.Buffer
	if payload != nil {
		require.NoError(t, json.NewEncoder(&body).Encode(payload))
	}
	req, err := http.NewRequest(method, s.server.URL+path, &body)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp.StatusCode, decoded
}

func (s testStack) registerUser(t *testing.T, email string) string {
	t.Helper()
	status, body := s.do(t, http.MethodPost, "/auth/register", "", map[string]string{
		"email":    email,
		"password": "ComplexPass123!",
	})
	require.Equal(t, http.StatusCreated, status)
	token, _ := body["token"].(string)
	require.NotEmpty(t, token)
	return token
}

func (s testStack) userID(t *testing.T, token string) string {
	t.Helper()
	claims, err := s.tokens.Validate(token)
	require.NoError(t, err)
	return claims.UserID
}

func TestHTTP_Auth_Flow(t *testing.T) {
	req := require.New(t)
	stack := newTestStack(t)

	token := stack.registerUser(t, "alice@example.com")
	req.NotEmpty(stack.userID(t, token))

	// Duplicate registration conflicts
	status, _ := stack.do(t, http.MethodPost, "/auth/register", "", map[string]string{
		"email": "alice@example.com", "password": "ComplexPass123!",
	})
	req.Equal(http.StatusConflict, status)

	// Login round trip
	status, body := stack.do(t, http.MethodPost, "/auth/login", "", map[string]string{
		"email": "alice@example.com", "password": "ComplexPass123!",
	})
	req.Equal(http.StatusOK, status)
	req.NotEmpty(body["token"])

	// Wrong password
	status, _ = stack.do(t, http.MethodPost, "/auth/login", "", map[string]string{
		"email": "alice@example.com", "password": "WrongPass123!",
	})
	req.Equal(http.StatusUnauthorized, status)
}

func TestHTTP_Requires_Authentication(t *testing.T) {
	req := require.New(t)
	stack := newTestStack(t)

	status, _ := stack.do(t, http.MethodGet, "/groups", "", nil)
	req.Equal(http.StatusUnauthorized, status)

	status, _ = stack.do(t, http.MethodGet, "/groups", "not-a-token", nil)
	req.Equal(http.StatusUnauthorized, status)
}

func TestHTTP_Group_Lifecycle(t *testing.T) {
	req := require.New(t)
	stack := newTestStack(t)
	aliceToken := stack.registerUser(t, "alice@example.com")
	bobToken := stack.registerUser(t, "bob@example.com")
	bobID := stack.userID(t, bobToken)

	// Create
	status, body := stack.do(t, http.MethodPost, "/groups", aliceToken, map[string]string{"name": "gophers"})
	req.Equal(http.StatusCreated, status)
	group := body["group"].(map[string]any)
	groupID := group["id"].(string)
	req.Equal(true, group["isAdmin"])

	// Missing name
	status, _ = stack.do(t, http.MethodPost, "/groups", aliceToken, map[string]string{"name": ""})
	req.Equal(http.StatusBadRequest, status)

	// Bob joins
	status, _ = stack.do(t, http.MethodPost, "/groups/"+groupID+"/join", bobToken, nil)
	req.Equal(http.StatusOK, status)

	// Joining twice
	status, _ = stack.do(t, http.MethodPost, "/groups/"+groupID+"/join", bobToken, nil)
	req.Equal(http.StatusBadRequest, status)

	// Unknown group
	status, _ = stack.do(t, http.MethodPost, "/groups/nope/join", bobToken, nil)
	req.Equal(http.StatusNotFound, status)

	// List is decorated per requester
	status, body = stack.do(t, http.MethodGet, "/groups", bobToken, nil)
	req.Equal(http.StatusOK, status)
	groups := body["groups"].([]any)
	req.Len(groups, 1)
	listed := groups[0].(map[string]any)
	req.Equal(true, listed["joined"])
	req.Equal(false, listed["isAdmin"])

	// Bob (not admin) cannot remove members
	status, _ = stack.do(t, http.MethodPost, "/groups/"+groupID+"/remove-member", bobToken,
		map[string]string{"userId": bobID})
	req.Equal(http.StatusForbidden, status)

	// Alice removes bob
	status, _ = stack.do(t, http.MethodPost, "/groups/"+groupID+"/remove-member", aliceToken,
		map[string]string{"userId": bobID})
	req.Equal(http.StatusOK, status)

	// Removing again: no longer a member
	status, _ = stack.do(t, http.MethodPost, "/groups/"+groupID+"/remove-member", aliceToken,
		map[string]string{"userId": bobID})
	req.Equal(http.StatusBadRequest, status)

	// Sole admin cannot leave
	status, _ = stack.do(t, http.MethodPost, "/groups/"+groupID+"/leave", aliceToken, nil)
	req.Equal(http.StatusBadRequest, status)

	// Admin adds bob back
	status, _ = stack.do(t, http.MethodPost, "/groups/"+groupID+"/add-member", aliceToken,
		map[string]string{"userId": bobID})
	req.Equal(http.StatusOK, status)
}

func TestHTTP_Group_Messages(t *testing.T) {
	req := require.New(t)
	stack := newTestStack(t)
	aliceToken := stack.registerUser(t, "alice@example.com")
	malloryToken := stack.registerUser(t, "mallory@example.com")

	status, body := stack.do(t, http.MethodPost, "/groups", aliceToken, map[string]string{"name": "gophers"})
	req.Equal(http.StatusCreated, status)
	groupID := body["group"].(map[string]any)["id"].(string)

	// Member posts a message
	status, body = stack.do(t, http.MethodPost, "/groups/"+groupID+"/messages", aliceToken,
		map[string]string{"content": "hello"})
	req.Equal(http.StatusCreated, status)
	req.Equal("hello", body["message"].(map[string]any)["content"])

	// Empty content
	status, _ = stack.do(t, http.MethodPost, "/groups/"+groupID+"/messages", aliceToken,
		map[string]string{"content": " "})
	req.Equal(http.StatusBadRequest, status)

	// Non-member cannot post or read
	status, _ = stack.do(t, http.MethodPost, "/groups/"+groupID+"/messages", malloryToken,
		map[string]string{"content": "let me in"})
	req.Equal(http.StatusForbidden, status)
	status, _ = stack.do(t, http.MethodGet, "/groups/"+groupID+"/messages", malloryToken, nil)
	req.Equal(http.StatusForbidden, status)

	// History in order
	status, body = stack.do(t, http.MethodPost, "/groups/"+groupID+"/messages", aliceToken,
		map[string]string{"content": "second"})
	req.Equal(http.StatusCreated, status)
	status, body = stack.do(t, http.MethodGet, "/groups/"+groupID+"/messages", aliceToken, nil)
	req.Equal(http.StatusOK, status)
	messages := body["messages"].([]any)
	req.Len(messages, 2)
	req.Equal("hello", messages[0].(map[string]any)["content"])
	req.Equal("second", messages[1].(map[string]any)["content"])
}

func TestHTTP_Delete_Group_Then_Send_Fails_NotFound(t *testing.T) {
	req := require.New(t)
	stack := newTestStack(t)
	aliceToken := stack.registerUser(t, "alice@example.com")

	status, body := stack.do(t, http.MethodPost, "/groups", aliceToken, map[string]string{"name": "doomed"})
	req.Equal(http.StatusCreated, status)
	groupID := body["group"].(map[string]any)["id"].(string)

	status, _ = stack.do(t, http.MethodDelete, "/groups/"+groupID, aliceToken, nil)
	req.Equal(http.StatusOK, status)

	// A later send targets a group that no longer exists
	status, _ = stack.do(t, http.MethodPost, "/groups/"+groupID+"/messages", aliceToken,
		map[string]string{"content": "anyone?"})
	req.Equal(http.StatusNotFound, status)
}

func TestStatusFor_Taxonomy(t *testing.T) {
	req := require.New(t)
	cases := []struct {
		err    error
		status int
	}{
		{apperrors.ErrInvalidInput, http.StatusBadRequest},
		{apperrors.ErrAlreadyMember, http.StatusBadRequest},
		{apperrors.ErrNotMember, http.StatusBadRequest},
		{apperrors.ErrSoleAdminCannotLeave, http.StatusBadRequest},
		{apperrors.ErrNotAuthenticated, http.StatusUnauthorized},
		{apperrors.ErrInvalidCredentials, http.StatusUnauthorized},
		{apperrors.ErrForbidden, http.StatusForbidden},
		{apperrors.ErrNotFound, http.StatusNotFound},
		{apperrors.ErrUserAlreadyExists, http.StatusConflict},
		{apperrors.ErrPersistence, http.StatusInternalServerError},
		{errors.New("anything else"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		req.Equal(c.status, statusFor(fmt.Errorf("wrapped: %w", c.err)), "err=%v", c.err)
	}
}

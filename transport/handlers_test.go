package transport

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"dm-lab/auth"
	"dm-lab/domain"
	"dm-lab/mocks"
	"dm-lab/moderation"
	"dm-lab/observability"
	"dm-lab/repositories"
	"dm-lab/runtime"
	"dm-lab/services"
)

// harness wires the full HTTP surface on top of a throwaway database.
type harness struct {
	server *httptest.Server
	blobs  *mocks.MockIBlobStore
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	req := require.New(t)

	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).
		WithLoggingLevel(badger.ERROR).
		WithValueLogFileSize(16 << 20))
	req.NoError(err)
	t.Cleanup(func() { _ = db.Close() })

	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	blobs := mocks.NewMockIBlobStore(ctrl)

	moderator, err := moderation.NewModerator([]string{"badger"}, '*')
	req.NoError(err)

	monitoring := observability.NewMonitoring()
	registry := runtime.NewRegistry()
	bus := runtime.NewBus(log, registry, monitoring, 100*time.Millisecond)
	tracker := runtime.NewTracker(registry, bus, 5*time.Minute)

	authenticator := auth.NewAuthenticator("test-secret", time.Hour)
	messageService := services.NewMessageService(log, repositories.NewMessageRepository(db, log),
		bus, blobs, &moderator, monitoring, time.Second, 200)
	authService := services.NewAuthService(log, repositories.NewUserRepository(db),
		blobs, authenticator, time.Second)

	handlers := NewHandlers(log, authService, messageService)
	wsHandler := NewWSHandler(log, registry, tracker, messageService, monitoring, 16)
	router := NewRouter(authenticator, handlers, wsHandler)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &harness{server: server, blobs: blobs}
}

func (h *harness) signup(t *testing.T, name, email string) (domain.User, string) {
	t.Helper()
	req := require.New(t)

	body, _ := json.Marshal(map[string]string{
		"fullName": name,
		"email":    email,
		"password": "long-enough-pass",
	})
	resp, err := http.Post(h.server.URL+"/api/auth/signup", "application/json", bytes.NewReader(body))
	req.NoError(err)
	defer resp.Body.Close()
	req.Equal(http.StatusCreated, resp.StatusCode)

	var envelope struct {
		Data struct {
			User  domain.User `json:"user"`
			Token string      `json:"token"`
		} `json:"data"`
	}
	req.NoError(json.NewDecoder(resp.Body).Decode(&envelope))
	return envelope.Data.User, envelope.Data.Token
}

func (h *harness) do(t *testing.T, method, path, token string, payload any) *http.Response {
	t.Helper()
	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}

	request, err := http.NewRequest(method, h.server.URL+path, body)
	require.NoError(t, err)
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}
	request.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(request)
	require.NoError(t, err)
	return resp
}

func decodeData[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var envelope struct {
		Data T `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	return envelope.Data
}

func TestHTTP_Signup_Login_Check(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)

	// Given a fresh account
	user, _ := h.signup(t, "Alice Liddell", "alice@example.com")
	req.NotEmpty(user.ID)

	// When logging in
	body, _ := json.Marshal(map[string]string{"email": "alice@example.com", "password": "long-enough-pass"})
	resp, err := http.Post(h.server.URL+"/api/auth/login", "application/json", bytes.NewReader(body))
	req.NoError(err)
	loginData := decodeData[struct {
		User  domain.User `json:"user"`
		Token string      `json:"token"`
	}](t, resp)
	req.Equal(user.ID, loginData.User.ID)

	// Then the token authenticates the check endpoint
	resp = h.do(t, http.MethodGet, "/api/auth/check", loginData.Token, nil)
	checked := decodeData[domain.User](t, resp)
	req.Equal(user.ID, checked.ID)
}

func TestHTTP_Login_Wrong_Password(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	h.signup(t, "Alice", "alice@example.com")

	body, _ := json.Marshal(map[string]string{"email": "alice@example.com", "password": "wrong-password"})
	resp, err := http.Post(h.server.URL+"/api/auth/login", "application/json", bytes.NewReader(body))
	req.NoError(err)
	defer resp.Body.Close()

	req.Equal(http.StatusUnauthorized, resp.StatusCode)

	// The error envelope marks the rejection as non retryable
	var envelope struct {
		Error struct {
			Message   string `json:"message"`
			Retryable bool   `json:"retryable"`
		} `json:"error"`
	}
	req.NoError(json.NewDecoder(resp.Body).Decode(&envelope))
	req.False(envelope.Error.Retryable)
	req.NotEmpty(envelope.Error.Message)
}

func TestHTTP_Protected_Routes_Require_Token(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)

	resp, err := http.Get(h.server.URL + "/api/messages/users")
	req.NoError(err)
	defer resp.Body.Close()
	req.Equal(http.StatusUnauthorized, resp.StatusCode)
}

func TestHTTP_Send_And_Conversation(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	_, aliceToken := h.signup(t, "Alice", "alice@example.com")
	bob, _ := h.signup(t, "Bob", "bob@example.com")

	// When alice sends two messages
	resp := h.do(t, http.MethodPost, "/api/messages/send/"+bob.ID, aliceToken,
		map[string]string{"text": "first"})
	req.Equal(http.StatusCreated, resp.StatusCode)
	first := decodeData[domain.Message](t, resp)

	resp = h.do(t, http.MethodPost, "/api/messages/send/"+bob.ID, aliceToken,
		map[string]string{"text": "second"})
	req.Equal(http.StatusCreated, resp.StatusCode)

	// Then the conversation comes back ascending
	resp = h.do(t, http.MethodGet, "/api/messages/"+bob.ID, aliceToken, nil)
	messages := decodeData[[]domain.Message](t, resp)
	req.Len(messages, 2)
	req.Equal("first", messages[0].Text)
	req.Equal("second", messages[1].Text)

	// And the since query excludes the cursor itself
	since := first.CreatedAt.Format(time.RFC3339Nano)
	resp = h.do(t, http.MethodGet,
		fmt.Sprintf("/api/messages/new/%s?since=%s", bob.ID, since), aliceToken, nil)
	newer := decodeData[[]domain.Message](t, resp)
	req.Len(newer, 1)
	req.Equal("second", newer[0].Text)
}

func TestHTTP_Send_Empty_Message(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	_, aliceToken := h.signup(t, "Alice", "alice@example.com")
	bob, _ := h.signup(t, "Bob", "bob@example.com")

	resp := h.do(t, http.MethodPost, "/api/messages/send/"+bob.ID, aliceToken,
		map[string]string{})
	defer resp.Body.Close()
	req.Equal(http.StatusBadRequest, resp.StatusCode)
}

func TestHTTP_Delete_Requires_Ownership(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	_, aliceToken := h.signup(t, "Alice", "alice@example.com")
	bob, bobToken := h.signup(t, "Bob", "bob@example.com")

	resp := h.do(t, http.MethodPost, "/api/messages/send/"+bob.ID, aliceToken,
		map[string]string{"text": "mine"})
	msg := decodeData[domain.Message](t, resp)

	// When the receiver tries to delete the sender's message
	resp = h.do(t, http.MethodDelete, "/api/messages/"+msg.ID.String(), bobToken, nil)
	resp.Body.Close()
	req.Equal(http.StatusForbidden, resp.StatusCode)

	// When the sender deletes it
	resp = h.do(t, http.MethodDelete, "/api/messages/"+msg.ID.String(), aliceToken, nil)
	resp.Body.Close()
	req.Equal(http.StatusOK, resp.StatusCode)

	// Then the conversation is empty
	resp = h.do(t, http.MethodGet, "/api/messages/"+bob.ID, aliceToken, nil)
	messages := decodeData[[]domain.Message](t, resp)
	req.Empty(messages)
}

func TestHTTP_Clear_Only_Removes_Own_Direction(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	alice, aliceToken := h.signup(t, "Alice", "alice@example.com")
	bob, bobToken := h.signup(t, "Bob", "bob@example.com")

	h.do(t, http.MethodPost, "/api/messages/send/"+bob.ID, aliceToken,
		map[string]string{"text": "from alice"}).Body.Close()
	h.do(t, http.MethodPost, "/api/messages/send/"+alice.ID, bobToken,
		map[string]string{"text": "from bob"}).Body.Close()

	// When alice clears her side
	resp := h.do(t, http.MethodDelete, "/api/messages/clear/"+bob.ID, aliceToken, nil)
	cleared := decodeData[map[string]int](t, resp)
	req.Equal(1, cleared["deletedCount"])

	// Then bob's message survives
	resp = h.do(t, http.MethodGet, "/api/messages/"+bob.ID, aliceToken, nil)
	messages := decodeData[[]domain.Message](t, resp)
	req.Len(messages, 1)
	req.Equal("from bob", messages[0].Text)
}

func TestHTTP_Contacts_Excludes_Self(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	_, aliceToken := h.signup(t, "Alice", "alice@example.com")
	bob, _ := h.signup(t, "Bob", "bob@example.com")

	resp := h.do(t, http.MethodGet, "/api/messages/users", aliceToken, nil)
	contacts := decodeData[[]domain.User](t, resp)
	req.Len(contacts, 1)
	req.Equal(bob.ID, contacts[0].ID)
}

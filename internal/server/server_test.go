package server

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"pairchat/internal/auth"
	"pairchat/internal/blob"
	"pairchat/internal/models"
	"pairchat/internal/service"
	"pairchat/internal/store"
	"pairchat/internal/store/badgerstore"
	"pairchat/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func init() { gin.SetMode(gin.TestMode) }

type testApp struct {
	engine    *gin.Engine
	registry  *ws.Registry
	store     store.Store
	uploadDir string
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	s, err := badgerstore.Open("", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	dir := t.TempDir()
	reg := ws.NewRegistry()
	codec := auth.NewCodec("test-secret", auth.SessionTTL)
	hasher := auth.BcryptHasher{Cost: bcrypt.MinCost}
	disk := blob.NewDisk(dir, "http://localhost:8080/uploads")

	engine, stop := SetupRouter(Deps{
		Auth:           auth.NewAuthenticator(codec, s),
		Users:          service.NewUserService(s, hasher, codec, disk, reg),
		Messages:       service.NewMessageService(s),
		Dispatcher:     service.NewDispatcher(s, disk, reg),
		Registry:       reg,
		SessionTTL:     auth.SessionTTL,
		AllowedOrigins: []string{"http://localhost:5173"},
		UploadDir:      dir,
	})
	t.Cleanup(stop)
	return &testApp{engine: engine, registry: reg, store: s, uploadDir: dir}
}

func (a *testApp) do(t *testing.T, method, path string, body interface{}, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if cookie != nil {
		req.AddCookie(cookie)
	}
	w := httptest.NewRecorder()
	a.engine.ServeHTTP(w, req)
	return w
}

func sessionCookie(t *testing.T, w *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range w.Result().Cookies() {
		if c.Name == auth.CookieName {
			return c
		}
	}
	t.Fatalf("no %s cookie in response", auth.CookieName)
	return nil
}

func (a *testApp) signup(t *testing.T, name, email string) (models.User, *http.Cookie) {
	t.Helper()
	w := a.do(t, http.MethodPost, "/api/v1/auth/signup", gin.H{"full_name": name, "email": email, "password": "secret123"}, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var u models.User
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &u))
	return u, sessionCookie(t, w)
}

func TestHealth(t *testing.T) {
	app := newTestApp(t)
	for _, path := range []string{"/healthz", "/health"} {
		w := app.do(t, http.MethodGet, path, nil, nil)
		require.Equal(t, http.StatusOK, w.Code)
		var body map[string]string
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "ok", body["status"])
		assert.NotEmpty(t, body["timestamp"])
	}
}

func TestSignupLoginLogout(t *testing.T) {
	app := newTestApp(t)

	w := app.do(t, http.MethodPost, "/api/v1/auth/signup", gin.H{"full_name": "Alice", "email": "alice@example.com", "password": "secret123"}, nil)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.NotContains(t, w.Body.String(), "password")
	cookie := sessionCookie(t, w)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, http.SameSiteStrictMode, cookie.SameSite)
	assert.Equal(t, int(auth.SessionTTL.Seconds()), cookie.MaxAge)

	w = app.do(t, http.MethodPost, "/api/v1/auth/signup", gin.H{"full_name": "Other", "email": "alice@example.com", "password": "secret456"}, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = app.do(t, http.MethodPost, "/api/v1/auth/login", gin.H{"email": "alice@example.com", "password": "wrong-pass"}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w = app.do(t, http.MethodPost, "/api/v1/auth/login", gin.H{"email": "nobody@example.com", "password": "secret123"}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = app.do(t, http.MethodPost, "/api/v1/auth/login", gin.H{"email": "alice@example.com", "password": "secret123"}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	login := sessionCookie(t, w)

	w = app.do(t, http.MethodGet, "/api/v1/auth/check", nil, login)
	require.Equal(t, http.StatusOK, w.Code)
	var me models.User
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &me))
	assert.Equal(t, "alice@example.com", me.Email)

	w = app.do(t, http.MethodPost, "/api/v1/auth/logout", nil, login)
	require.Equal(t, http.StatusOK, w.Code)
	cleared := sessionCookie(t, w)
	assert.Empty(t, cleared.Value)
	assert.Negative(t, cleared.MaxAge)
}

func TestSignupValidation(t *testing.T) {
	app := newTestApp(t)
	cases := map[string]gin.H{
		"short name":     {"full_name": "A", "email": "a@example.com", "password": "secret123"},
		"bad email":      {"full_name": "Alice", "email": "not-an-email", "password": "secret123"},
		"short password": {"full_name": "Alice", "email": "a@example.com", "password": "12345"},
		"long password":  {"full_name": "Alice", "email": "a@example.com", "password": strings.Repeat("x", 21)},
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			w := app.do(t, http.MethodPost, "/api/v1/auth/signup", body, nil)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestProtectedRoutesRequireSession(t *testing.T) {
	app := newTestApp(t)
	for _, path := range []string{"/api/v1/auth/check", "/api/v1/messages/users", "/ws"} {
		w := app.do(t, http.MethodGet, path, nil, nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
	}
	w := app.do(t, http.MethodGet, "/api/v1/auth/check", nil, &http.Cookie{Name: auth.CookieName, Value: "garbage"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSendAndHistory(t *testing.T) {
	app := newTestApp(t)
	alice, aliceCookie := app.signup(t, "Alice", "alice@example.com")
	bob, bobCookie := app.signup(t, "Bob", "bob@example.com")

	w := app.do(t, http.MethodPost, "/api/v1/messages/send/"+bob.ID, gin.H{"text": "hi bob"}, aliceCookie)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var sent models.Message
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sent))
	assert.Equal(t, alice.ID, sent.SenderID)
	assert.Equal(t, bob.ID, sent.ReceiverID)

	w = app.do(t, http.MethodPost, "/api/v1/messages/send/"+alice.ID, gin.H{"text": "hi alice"}, bobCookie)
	require.Equal(t, http.StatusCreated, w.Code)

	w = app.do(t, http.MethodGet, "/api/v1/messages/"+alice.ID, nil, bobCookie)
	require.Equal(t, http.StatusOK, w.Code)
	var history []models.Message
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &history))
	require.Len(t, history, 2)
	assert.Equal(t, sent.ID, history[0].ID)
	assert.Equal(t, "hi alice", history[1].Text)
}

func TestSendValidation(t *testing.T) {
	app := newTestApp(t)
	_, cookie := app.signup(t, "Alice", "alice@example.com")
	bob, _ := app.signup(t, "Bob", "bob@example.com")
	path := "/api/v1/messages/send/" + bob.ID

	cases := map[string]gin.H{
		"empty":         {},
		"too long":      {"text": strings.Repeat("é", 1001)},
		"bad image ref": {"image": "ftp://example.com/a.png"},
		"not an image":  {"image": "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("plain text"))},
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			w := app.do(t, http.MethodPost, path, body, cookie)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		})
	}

	w := app.do(t, http.MethodPost, path, gin.H{"text": strings.Repeat("é", 1000)}, cookie)
	assert.Equal(t, http.StatusCreated, w.Code)
	w = app.do(t, http.MethodPost, path, gin.H{"text": "   "}, cookie)
	assert.Equal(t, http.StatusCreated, w.Code)

	w = app.do(t, http.MethodGet, "/api/v1/messages/"+bob.ID, nil, cookie)
	var history []models.Message
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &history))
	assert.Len(t, history, 2)
}

func TestSendImage(t *testing.T) {
	app := newTestApp(t)
	_, cookie := app.signup(t, "Alice", "alice@example.com")
	bob, _ := app.signup(t, "Bob", "bob@example.com")

	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00\x1f\x15\xc4\x89")
	ref := "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
	w := app.do(t, http.MethodPost, "/api/v1/messages/send/"+bob.ID, gin.H{"image": ref}, cookie)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var msg models.Message
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &msg))
	require.True(t, strings.HasPrefix(msg.Image, "http://localhost:8080/uploads/images/"), msg.Image)
	assert.True(t, strings.HasSuffix(msg.Image, ".png"))

	served := app.do(t, http.MethodGet, strings.TrimPrefix(msg.Image, "http://localhost:8080"), nil, nil)
	assert.Equal(t, http.StatusOK, served.Code)
	assert.Equal(t, png, served.Body.Bytes())
}

func TestHistoryEdgeCases(t *testing.T) {
	app := newTestApp(t)
	_, cookie := app.signup(t, "Alice", "alice@example.com")

	w := app.do(t, http.MethodGet, "/api/v1/messages/not-a-uuid", nil, cookie)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = app.do(t, http.MethodGet, "/api/v1/messages/"+uuid.NewString(), nil, cookie)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())
}

func TestRosterAndOnline(t *testing.T) {
	app := newTestApp(t)
	alice, cookie := app.signup(t, "Alice", "alice@example.com")
	bob, _ := app.signup(t, "Bob", "bob@example.com")
	carol, _ := app.signup(t, "Carol", "carol@example.com")
	app.registry.Register(bob.ID, nopHandle{})

	w := app.do(t, http.MethodGet, "/api/v1/messages/users", nil, cookie)
	require.Equal(t, http.StatusOK, w.Code)
	var peers []service.Peer
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &peers))
	require.Len(t, peers, 2)
	online := map[string]bool{}
	for _, p := range peers {
		online[p.ID] = p.Online
	}
	assert.True(t, online[bob.ID])
	assert.False(t, online[carol.ID])
	assert.NotContains(t, online, alice.ID)

	w = app.do(t, http.MethodGet, "/api/v1/messages/online", nil, cookie)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `["`+bob.ID+`"]`, w.Body.String())
}

func TestUpdateProfile(t *testing.T) {
	app := newTestApp(t)
	_, cookie := app.signup(t, "Alice", "alice@example.com")

	w := app.do(t, http.MethodPut, "/api/v1/auth/profile", gin.H{"avatar": "https://cdn.example.com/me.png"}, cookie)
	require.Equal(t, http.StatusOK, w.Code)
	var u models.User
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &u))
	assert.Equal(t, "https://cdn.example.com/me.png", u.AvatarURL)

	w = app.do(t, http.MethodPut, "/api/v1/auth/profile", gin.H{"avatar": "not a url"}, cookie)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAuthRateLimit(t *testing.T) {
	app := newTestApp(t)
	body := gin.H{"email": "nobody@example.com", "password": "secret123"}
	for i := 0; i < 10; i++ {
		w := app.do(t, http.MethodPost, "/api/v1/auth/login", body, nil)
		require.Equal(t, http.StatusUnauthorized, w.Code)
	}
	w := app.do(t, http.MethodPost, "/api/v1/auth/login", body, nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestAuthRateLimitIgnoresSuccessfulLogins(t *testing.T) {
	app := newTestApp(t)
	app.signup(t, "Alice", "alice@example.com")
	body := gin.H{"email": "alice@example.com", "password": "secret123"}
	for i := 0; i < 15; i++ {
		w := app.do(t, http.MethodPost, "/api/v1/auth/login", body, nil)
		require.Equal(t, http.StatusOK, w.Code, "login %d", i)
	}
}

func TestHealthSharesGeneralLimit(t *testing.T) {
	app := newTestApp(t)
	for i := 0; i < 100; i++ {
		require.Equal(t, http.StatusOK, app.do(t, http.MethodGet, "/health", nil, nil).Code)
	}
	assert.Equal(t, http.StatusTooManyRequests, app.do(t, http.MethodGet, "/health", nil, nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, app.do(t, http.MethodGet, "/api/v1/auth/check", nil, nil).Code)
	assert.Equal(t, http.StatusOK, app.do(t, http.MethodGet, "/healthz", nil, nil).Code)
}

type nopHandle struct{}

func (nopHandle) Push([]byte) error { return nil }

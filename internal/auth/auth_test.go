package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swcatalog/pkg/database/dbtest"
)

var testTokens = TokenService{Secret: []byte("test-secret"), Issuer: "swcatalog-test", Duration: time.Hour}

func newAuthRouter(t *testing.T) (*gin.Engine, *Handler) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	h := NewHandler(NewRepo(dbtest.Open(t)), testTokens, zerolog.Nop())

	r := gin.New()
	h.RegisterRoutes(r.Group("/auth"))
	r.GET("/guarded", RequireOperator(h.Tokens, h.Repo), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"operator": ClaimsFrom(c).Username})
	})
	return r, h
}

func call(r http.Handler, method, target, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func tokenFrom(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.NotEmpty(t, body.Token)
	return body.Token
}

const leiaBody = `{"username":"leia","email":"Leia@Alderaan.gov","password":"helpme-obiwan"}`

func TestRegisterLoginAndGuard(t *testing.T) {
	r, _ := newAuthRouter(t)

	w := call(r, http.MethodPost, "/auth/register", "", leiaBody)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	token := tokenFrom(t, w)

	w = call(r, http.MethodGet, "/guarded", token, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"operator":"leia"}`, w.Body.String())

	w = call(r, http.MethodPost, "/auth/login", "", `{"email":"leia@alderaan.gov","password":"helpme-obiwan"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"email":"leia@alderaan.gov"`)

	w = call(r, http.MethodPost, "/auth/login", "", `{"email":"leia@alderaan.gov","password":"wrong-password"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = call(r, http.MethodGet, "/auth/me", token, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"username":"leia"`)
}

func TestRegistrationClosesAfterFirstOperator(t *testing.T) {
	r, h := newAuthRouter(t)

	require.Equal(t, http.StatusCreated, call(r, http.MethodPost, "/auth/register", "", leiaBody).Code)
	w := call(r, http.MethodPost, "/auth/register", "", `{"username":"han","email":"han@falcon.io","password":"never-tell-me"}`)
	assert.Equal(t, http.StatusForbidden, w.Code)

	h.OpenRegistration = true
	w = call(r, http.MethodPost, "/auth/register", "", `{"username":"leia2","email":"leia@alderaan.gov","password":"helpme-obiwan"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	w = call(r, http.MethodPost, "/auth/register", "", `{"username":"han","email":"han@falcon.io","password":"never-tell-me"}`)
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestRegisterValidation(t *testing.T) {
	r, _ := newAuthRouter(t)
	for _, body := range []string{
		`{"username":"x","email":"x@y.z","password":"longenough"}`,
		`{"username":"valid","email":"nope","password":"longenough"}`,
		`{"username":"valid","email":"x@y.z","password":"short"}`,
		`not json`,
	} {
		assert.Equal(t, http.StatusBadRequest, call(r, http.MethodPost, "/auth/register", "", body).Code, body)
	}
}

func TestLogoutRevokesToken(t *testing.T) {
	r, _ := newAuthRouter(t)
	token := tokenFrom(t, call(r, http.MethodPost, "/auth/register", "", leiaBody))

	require.Equal(t, http.StatusOK, call(r, http.MethodPost, "/auth/logout", token, "").Code)
	assert.Equal(t, http.StatusUnauthorized, call(r, http.MethodGet, "/guarded", token, "").Code)
}

func TestChangePasswordRevokesToken(t *testing.T) {
	r, _ := newAuthRouter(t)
	token := tokenFrom(t, call(r, http.MethodPost, "/auth/register", "", leiaBody))

	w := call(r, http.MethodPost, "/auth/change-password", token, `{"old_password":"bad-guess!","new_password":"new-hope-1977"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = call(r, http.MethodPost, "/auth/change-password", token, `{"old_password":"helpme-obiwan","new_password":"new-hope-1977"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, http.StatusUnauthorized, call(r, http.MethodGet, "/guarded", token, "").Code)

	w = call(r, http.MethodPost, "/auth/login", "", `{"email":"leia@alderaan.gov","password":"new-hope-1977"}`)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestGuardRejectsBadTokens(t *testing.T) {
	r, h := newAuthRouter(t)
	token := tokenFrom(t, call(r, http.MethodPost, "/auth/register", "", leiaBody))

	assert.Equal(t, http.StatusUnauthorized, call(r, http.MethodGet, "/guarded", "", "").Code)
	assert.Equal(t, http.StatusUnauthorized, call(r, http.MethodGet, "/guarded", "garbage", "").Code)

	other := TokenService{Secret: []byte("other"), Issuer: testTokens.Issuer, Duration: time.Hour}
	claims, err := h.Tokens.Parse(token)
	require.NoError(t, err)
	forged, _, err := other.Sign(&Operator{ID: claims.OperatorID, Username: "leia"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, call(r, http.MethodGet, "/guarded", forged, "").Code)

	expired := TokenService{Secret: testTokens.Secret, Issuer: testTokens.Issuer, Duration: -time.Minute}
	old, _, err := expired.Sign(&Operator{ID: claims.OperatorID, Username: "leia"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, call(r, http.MethodGet, "/guarded", old, "").Code)
}

func TestBearer(t *testing.T) {
	tok, ok := bearer("Bearer abc")
	assert.True(t, ok)
	assert.Equal(t, "abc", tok)

	tok, ok = bearer("bearer   xyz ")
	assert.True(t, ok)
	assert.Equal(t, "xyz", tok)

	_, ok = bearer("Basic abc")
	assert.False(t, ok)
	_, ok = bearer("Bearer ")
	assert.False(t, ok)
}

package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"duochat/internal/auth"
	"duochat/internal/mocks"
	"duochat/internal/models"
	"duochat/internal/timeline"
)

const identityTestSecret = "identity-secret"

func setupAuthRouter(handler *AuthHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/gate", handler.CheckGate)
	r.POST("/session", handler.StartSession)
	r.PUT("/me/display-name", func(c *gin.Context) {
		c.Set("userID", "alice")
		handler.UpdateDisplayName(c)
	})
	return r
}

func newTestAuthHandler(t *testing.T, profileRepo *mocks.ProfileRepositoryMock) *AuthHandler {
	t.Helper()
	hash, err := auth.HashSecret("open sesame")
	require.NoError(t, err)

	gate := auth.NewGate(hash)
	identity := auth.NewJWTIdentityProvider(identityTestSecret)
	sessions := auth.NewSessionManager("session-secret", "duochat", time.Hour)
	broker := timeline.NewBroker(timeline.RepoStore{Messages: new(mocks.MessageRepositoryMock), Profiles: profileRepo}, nil)
	return NewAuthHandler(gate, identity, sessions, profileRepo, broker, nil)
}

func TestCheckGateAccepts(t *testing.T) {
	handler := newTestAuthHandler(t, new(mocks.ProfileRepositoryMock))
	router := setupAuthRouter(handler)

	req := httptest.NewRequest(http.MethodPost, "/gate", bytes.NewBufferString(`{"secret":"open sesame"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestCheckGateRejects(t *testing.T) {
	handler := newTestAuthHandler(t, new(mocks.ProfileRepositoryMock))
	router := setupAuthRouter(handler)

	req := httptest.NewRequest(http.MethodPost, "/gate", bytes.NewBufferString(`{"secret":"guess"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestStartSessionSuccess(t *testing.T) {
	profileRepo := new(mocks.ProfileRepositoryMock)
	handler := newTestAuthHandler(t, profileRepo)
	router := setupAuthRouter(handler)

	profileRepo.On("Upsert", mock.Anything, mock.MatchedBy(func(p models.Profile) bool {
		return p.ID == "alice" && p.DisplayName == "Alice"
	})).Return(models.Profile{ID: "alice", DisplayName: "Alice"}, nil).Once()

	assertion, err := auth.SignAssertion(identityTestSecret, auth.Identity{
		UserID:      "alice",
		DisplayName: "Alice",
		Email:       "alice@example.com",
	}, time.Minute)
	require.NoError(t, err)

	payload, err := json.Marshal(gin.H{"assertion": assertion})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/session", bytes.NewBuffer(payload))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Token   string         `json:"token"`
		Profile models.Profile `json:"profile"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, "alice", resp.Profile.ID)
	assert.Contains(t, resp.Profile.AvatarURL, "ui-avatars.com")
	profileRepo.AssertExpectations(t)
}

func TestStartSessionBadAssertion(t *testing.T) {
	handler := newTestAuthHandler(t, new(mocks.ProfileRepositoryMock))
	router := setupAuthRouter(handler)

	req := httptest.NewRequest(http.MethodPost, "/session", bytes.NewBufferString(`{"assertion":"garbage"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestStartSessionWrongKeyAssertion(t *testing.T) {
	handler := newTestAuthHandler(t, new(mocks.ProfileRepositoryMock))
	router := setupAuthRouter(handler)

	assertion, err := auth.SignAssertion("some-other-key", auth.Identity{UserID: "alice"}, time.Minute)
	require.NoError(t, err)

	payload, err := json.Marshal(gin.H{"assertion": assertion})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/session", bytes.NewBuffer(payload))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUpdateDisplayNameSuccess(t *testing.T) {
	profileRepo := new(mocks.ProfileRepositoryMock)
	handler := newTestAuthHandler(t, profileRepo)
	router := setupAuthRouter(handler)

	profileRepo.On("SetDisplayName", mock.Anything, "alice", "New Name").Return(nil).Once()

	req := httptest.NewRequest(http.MethodPut, "/me/display-name", bytes.NewBufferString(`{"display_name":"New Name"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	profileRepo.AssertExpectations(t)
}

package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetwatch/collector/middleware"
	"fleetwatch/collector/services"
	"fleetwatch/collector/storage/memory"
	"fleetwatch/pkg/logger"
	"fleetwatch/pkg/models"
)

type eventRecorder struct {
	mu     sync.Mutex
	events []services.StatusEvent
}

func (r *eventRecorder) notify(event services.StatusEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *eventRecorder) recorded() []services.StatusEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]services.StatusEvent(nil), r.events...)
}

type agentTestEnv struct {
	router *gin.Engine
	store  *memory.Store
	tokens *services.TokenService
	events *eventRecorder
}

func setupAgentEnv(t *testing.T) *agentTestEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log, err := logger.New("collector", "")
	require.NoError(t, err)

	store := memory.NewStore()
	tokens := services.NewTokenService("test-secret", time.Hour)
	events := &eventRecorder{}

	handler := NewAgentHandler(store, tokens, events.notify, log)
	router := gin.New()
	auth := middleware.AgentAuth(tokens)
	router.POST("/api/register-agent", auth, handler.Register)
	router.POST("/api/heartbeat", auth, handler.Heartbeat)

	return &agentTestEnv{router: router, store: store, tokens: tokens, events: events}
}

func (env *agentTestEnv) post(t *testing.T, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	return w
}

func registerRequest(token string) models.RegisterRequest {
	return models.RegisterRequest{
		PCID:      "PC-1",
		AuthToken: token,
		SystemInfo: models.RegisterSystemInfo{
			Platform:       "linux",
			Arch:           "amd64",
			RuntimeVersion: "go1.23",
			Hostname:       "host-1",
		},
	}
}

func TestRegisterAgent(t *testing.T) {
	env := setupAgentEnv(t)
	token, err := env.tokens.GenerateToken("PC-1")
	require.NoError(t, err)

	w := env.post(t, "/api/register-agent", token, registerRequest(token))
	require.Equal(t, http.StatusOK, w.Code)

	var resp models.RegisterResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Contains(t, resp.Message, "PC-1")

	pc, err := env.store.GetPC(context.Background(), "PC-1")
	require.NoError(t, err)
	require.NotNil(t, pc)
	assert.Equal(t, models.StatusOnline, pc.Status)
	assert.Equal(t, "linux", pc.SystemInfo["platform"])
	assert.False(t, pc.LastSeenAt.IsZero())

	events := env.events.recorded()
	require.Len(t, events, 1)
	assert.Equal(t, models.StatusOnline, events[0].Status)
}

func TestRegisterAgentMissingToken(t *testing.T) {
	env := setupAgentEnv(t)
	w := env.post(t, "/api/register-agent", "", registerRequest("whatever"))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRegisterAgentTokenForDifferentPC(t *testing.T) {
	env := setupAgentEnv(t)
	token, err := env.tokens.GenerateToken("PC-2")
	require.NoError(t, err)

	w := env.post(t, "/api/register-agent", token, registerRequest(token))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRegisterAgentValidation(t *testing.T) {
	env := setupAgentEnv(t)
	token, err := env.tokens.GenerateToken("PC-1")
	require.NoError(t, err)

	req := registerRequest(token)
	req.SystemInfo.Platform = ""
	w := env.post(t, "/api/register-agent", token, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func heartbeatRequest(status string) models.HeartbeatRequest {
	return models.HeartbeatRequest{
		PCID:      "PC-1",
		Timestamp: time.Now().UnixMilli(),
		Status:    status,
		SystemInfo: &models.HeartbeatSystemInfo{
			Platform:             "linux",
			Arch:                 "amd64",
			RuntimeVersion:       "go1.23",
			UptimeSeconds:        120,
			MemoryUsage:          1 << 20,
			LastHeartbeatSuccess: true,
		},
	}
}

func TestReRegistrationDoesNotRepeatOnlineEvent(t *testing.T) {
	env := setupAgentEnv(t)
	token, err := env.tokens.GenerateToken("PC-1")
	require.NoError(t, err)

	require.Equal(t, http.StatusOK, env.post(t, "/api/register-agent", token, registerRequest(token)).Code)
	require.Equal(t, http.StatusOK, env.post(t, "/api/register-agent", token, registerRequest(token)).Code)

	events := env.events.recorded()
	require.Len(t, events, 1, "an agent restart while ONLINE is not a transition")
	assert.Equal(t, models.StatusOnline, events[0].Status)

	// After going OFFLINE, re-registration is a transition again.
	hb := heartbeatRequest(models.StatusOffline)
	require.Equal(t, http.StatusOK, env.post(t, "/api/heartbeat", token, hb).Code)
	require.Equal(t, http.StatusOK, env.post(t, "/api/register-agent", token, registerRequest(token)).Code)

	events = env.events.recorded()
	require.Len(t, events, 3)
	assert.Equal(t, models.StatusOnline, events[2].Status)
}

func TestHeartbeatBeforeRegistration(t *testing.T) {
	env := setupAgentEnv(t)
	token, err := env.tokens.GenerateToken("PC-1")
	require.NoError(t, err)

	w := env.post(t, "/api/heartbeat", token, heartbeatRequest(models.StatusOnline))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHeartbeatUpdatesRecord(t *testing.T) {
	env := setupAgentEnv(t)
	token, err := env.tokens.GenerateToken("PC-1")
	require.NoError(t, err)

	require.Equal(t, http.StatusOK, env.post(t, "/api/register-agent", token, registerRequest(token)).Code)

	w := env.post(t, "/api/heartbeat", token, heartbeatRequest(models.StatusOnline))
	require.Equal(t, http.StatusOK, w.Code)

	var resp models.HeartbeatResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.OK)

	pc, err := env.store.GetPC(context.Background(), "PC-1")
	require.NoError(t, err)
	require.NotNil(t, pc)
	assert.Equal(t, models.StatusOnline, pc.Status)
	assert.True(t, pc.LastHeartbeatSuccess)
	assert.EqualValues(t, 120, pc.SystemInfo["uptimeSeconds"])
}

func TestOfflineHeartbeatEmitsTransition(t *testing.T) {
	env := setupAgentEnv(t)
	token, err := env.tokens.GenerateToken("PC-1")
	require.NoError(t, err)

	require.Equal(t, http.StatusOK, env.post(t, "/api/register-agent", token, registerRequest(token)).Code)

	hb := heartbeatRequest(models.StatusOffline)
	hb.ShutdownReason = "signal: terminated"
	require.Equal(t, http.StatusOK, env.post(t, "/api/heartbeat", token, hb).Code)

	pc, err := env.store.GetPC(context.Background(), "PC-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusOffline, pc.Status)
	assert.Equal(t, "signal: terminated", pc.ShutdownReason)

	events := env.events.recorded()
	require.Len(t, events, 2) // register ONLINE + heartbeat OFFLINE
	assert.Equal(t, models.StatusOffline, events[1].Status)
}

func TestHeartbeatRoundTrip(t *testing.T) {
	// A message serialized by the agent and parsed by the collector must
	// preserve every field.
	original := heartbeatRequest(models.StatusOnline)
	original.ShutdownReason = ""

	data, err := json.Marshal(original)
	require.NoError(t, err)

	var parsed models.HeartbeatRequest
	require.NoError(t, json.Unmarshal(data, &parsed))
	assert.Equal(t, original, parsed)
}

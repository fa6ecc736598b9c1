package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetwatch/agent/clients"
	"fleetwatch/pkg/models"
)

func newTestClient(serverURL string) *CollectorClient {
	return NewCollectorClient(clients.NewClient(serverURL, "tok-A", "PC-1", 2*time.Second))
}

func TestRegisterSuccess(t *testing.T) {
	var got models.RegisterRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/register-agent", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(models.RegisterResponse{Message: "agent PC-1 registered"})
	}))
	defer server.Close()

	message, err := newTestClient(server.URL).Register(context.Background(), models.RegisterRequest{
		PCID:      "PC-1",
		AuthToken: "tok-A",
		SystemInfo: models.RegisterSystemInfo{
			Platform:       "linux",
			Arch:           "amd64",
			RuntimeVersion: "go1.23",
			Hostname:       "host-1",
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "agent PC-1 registered", message)
	assert.Equal(t, "PC-1", got.PCID)
	assert.Equal(t, "tok-A", got.AuthToken)
	assert.Equal(t, "linux", got.SystemInfo.Platform)
}

func TestRegisterUnauthorized(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(models.ErrorResponse{Error: "invalid token"})
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Register(context.Background(), models.RegisterRequest{PCID: "PC-1"})
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestRegisterUnexpectedStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(models.ErrorResponse{Error: "boom"})
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Register(context.Background(), models.RegisterRequest{PCID: "PC-1"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnauthorized)
}

func TestHeartbeatStatuses(t *testing.T) {
	status := http.StatusOK
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(models.HeartbeatResponse{OK: status == http.StatusOK})
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	hb := models.HeartbeatRequest{PCID: "PC-1", Timestamp: time.Now().UnixMilli(), Status: models.StatusOnline}

	require.NoError(t, client.Heartbeat(context.Background(), hb))

	status = http.StatusUnauthorized
	assert.ErrorIs(t, client.Heartbeat(context.Background(), hb), ErrUnauthorized)

	status = http.StatusBadGateway
	err := client.Heartbeat(context.Background(), hb)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnauthorized)
}

package notify

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/Disc0-0/LOmanGUI-Full/internal/supervisor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type staticNames map[string]string

func (n staticNames) Lookup(serverID, fallback string) string {
	if name, ok := n[serverID]; ok {
		return name
	}
	return fallback
}

func TestPublishResolvesDisplayName(t *testing.T) {
	var (
		mu       sync.Mutex
		received []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		mu.Lock()
		received = append(received, payload["content"])
		mu.Unlock()
	}))
	defer srv.Close()

	w := NewWebhook(zap.NewNop(), srv.URL, staticNames{"Foo3": "Dune Valley"})
	w.Publish(supervisor.Event{ServerID: "Foo3", State: supervisor.StateStarting, Time: time.Now()})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	}, 5*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "Dune Valley is starting up", received[0])
}

func TestPublishFallsBackToServerID(t *testing.T) {
	var (
		mu   sync.Mutex
		last string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]string
		_ = json.NewDecoder(r.Body).Decode(&payload)
		mu.Lock()
		last = payload["content"]
		mu.Unlock()
	}))
	defer srv.Close()

	w := NewWebhook(zap.NewNop(), srv.URL, staticNames{})
	w.Publish(supervisor.Event{ServerID: "Disc0oasis2", State: supervisor.StateCrashed, Crashes: 3})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return last != ""
	}, 5*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "Disc0oasis2 crashed: restarting (crash #3)", last)
}

func TestDeliveryFailureIsSwallowed(t *testing.T) {
	// Unroutable endpoint: both Announce and Publish must absorb the failure.
	w := NewWebhook(zap.NewNop(), "http://127.0.0.1:1/hook", nil)
	w.Announce("fleet restarting")
	w.Publish(supervisor.Event{ServerID: "Foo0", State: supervisor.StateStopped})
}

func TestAnnounceDelivers(t *testing.T) {
	var (
		mu   sync.Mutex
		body string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]string
		_ = json.NewDecoder(r.Body).Decode(&payload)
		mu.Lock()
		body = payload["content"]
		mu.Unlock()
	}))
	defer srv.Close()

	w := NewWebhook(zap.NewNop(), srv.URL, nil)
	w.Announce("Server update detected! Restarting tiles in 300 seconds.")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "Server update detected! Restarting tiles in 300 seconds.", body)
}

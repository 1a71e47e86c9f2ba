// Package notify forwards fleet events to the external status webhook.
//
// Delivery is strictly best-effort: every call carries a bounded timeout, a
// failing endpoint is reported once per failure streak, and nothing here ever
// propagates an error back into a tile worker.
package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/Disc0-0/LOmanGUI-Full/internal/supervisor"
	"go.uber.org/zap"
)

const deliveryTimeout = 10 * time.Second

// NameLookup resolves a server id to a display name, with a fallback.
// Satisfied by tilename.Registry.
type NameLookup interface {
	Lookup(serverID, fallback string) string
}

// Webhook posts Discord-style {"content": ...} payloads to the configured
// status webhook. Implements supervisor.Notifier.
type Webhook struct {
	log    *zap.Logger
	url    string
	names  NameLookup
	client *http.Client

	failing atomic.Bool // suppresses repeat failure logs within a streak
}

// NewWebhook builds the notification adapter. names may be nil, in which case
// the raw server id is used.
func NewWebhook(log *zap.Logger, url string, names NameLookup) *Webhook {
	return &Webhook{
		log:    log.Named("notify"),
		url:    url,
		names:  names,
		client: &http.Client{Timeout: deliveryTimeout},
	}
}

// Publish forwards one state-transition event. Fire-and-forget: delivery runs
// on its own goroutine and the caller never observes the outcome.
func (w *Webhook) Publish(ev supervisor.Event) {
	name := ev.ServerID
	if w.names != nil {
		name = w.names.Lookup(ev.ServerID, ev.ServerID)
	}

	var msg string
	switch ev.State {
	case supervisor.StateStarting:
		msg = fmt.Sprintf("%s is starting up", name)
	case supervisor.StateRunning:
		msg = fmt.Sprintf("%s is up and running", name)
	case supervisor.StateStopping:
		msg = fmt.Sprintf("%s is shutting down", name)
	case supervisor.StateStopped:
		msg = fmt.Sprintf("%s has stopped", name)
	case supervisor.StateCrashed:
		msg = fmt.Sprintf("%s crashed: restarting (crash #%d)", name, ev.Crashes)
	default:
		return
	}

	go w.post(msg)
}

// Announce sends a fleet-level message (update-cycle statuses, restart
// warnings). Best-effort, synchronous.
func (w *Webhook) Announce(msg string) {
	w.post(msg)
}

func (w *Webhook) post(msg string) {
	w.log.Info("status notification", zap.String("message", msg))

	payload, err := json.Marshal(map[string]string{"content": msg})
	if err != nil {
		return
	}
	resp, err := w.client.Post(w.url, "application/json", bytes.NewReader(payload))
	if err != nil {
		if w.failing.CompareAndSwap(false, true) {
			w.log.Warn("webhook delivery failed; suppressing until recovery", zap.Error(err))
		}
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		if w.failing.CompareAndSwap(false, true) {
			w.log.Warn("webhook rejected notification; suppressing until recovery",
				zap.Int("status", resp.StatusCode))
		}
		return
	}
	w.failing.Store(false)
}

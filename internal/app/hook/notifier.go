// Package hook is the best-effort side channel to the external AI
// analysis service. Deliveries are fire-and-forget: a slow or dead
// endpoint only delays the eventual StreamSent event, never the media
// session.
package hook

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"chorus/internal/domain"
	"chorus/internal/event"
)

// Status is the last-known connectivity state. It is refreshed only by
// Configure, never re-polled on a timer.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnected    Status = "connected"
	StatusFailed       Status = "failed"
)

const probeTimeout = 5 * time.Second

type Config struct {
	Enabled   bool
	Endpoint  string
	AuthToken string
}

// StreamMetadata is the POST /stream payload.
type StreamMetadata struct {
	RoomID     domain.RoomID     `json:"roomId"`
	PeerID     domain.PeerID     `json:"peerId"`
	ProducerID domain.ProducerID `json:"producerId"`
	Kind       domain.MediaKind  `json:"kind"`
	Metadata   domain.Metadata   `json:"metadata,omitempty"`
}

type Notifier struct {
	events *event.Hub
	client *http.Client

	mu     sync.RWMutex
	cfg    Config
	status Status

	wg sync.WaitGroup
}

func NewNotifier(events *event.Hub) *Notifier {
	return &Notifier{
		events: events,
		client: &http.Client{Timeout: probeTimeout},
		status: StatusDisconnected,
	}
}

// SetClient swaps the HTTP client, for tests.
func (n *Notifier) SetClient(c *http.Client) { n.client = c }

// Configure applies the hook settings. Enabling with an endpoint kicks
// off an asynchronous health probe; Configure itself never blocks on
// the network, so Status is eventually consistent with the probe.
func (n *Notifier) Configure(cfg Config) {
	n.mu.Lock()
	n.cfg = cfg
	switch {
	case !cfg.Enabled:
		n.status = StatusDisconnected
	case cfg.Endpoint == "":
		log.Warn().Str("module", "app.hook").Msg("hook enabled without endpoint")
		n.status = StatusDisconnected
	}
	probe := cfg.Enabled && cfg.Endpoint != ""
	n.mu.Unlock()

	if probe {
		n.wg.Add(1)
		go n.probe(cfg)
	}
}

// Status reports the last-known connectivity state.
func (n *Notifier) Status() Status {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.status
}

// Enabled reports whether deliveries would actually go out.
func (n *Notifier) Enabled() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.cfg.Enabled && n.cfg.Endpoint != ""
}

// SendStreamMetadata forwards stream metadata asynchronously. No-op
// when disabled or unconfigured. The outcome surfaces only as a
// StreamSent event; failures are swallowed here. At-most-once, no
// retries.
func (n *Notifier) SendStreamMetadata(meta StreamMetadata) {
	n.mu.RLock()
	cfg := n.cfg
	n.mu.RUnlock()
	if !cfg.Enabled || cfg.Endpoint == "" {
		return
	}

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		var errText string
		if err := n.post(cfg, meta); err != nil {
			errText = err.Error()
			log.Warn().Str("module", "app.hook").Err(err).Str("producer", string(meta.ProducerID)).Msg("stream metadata delivery failed")
		} else {
			log.Debug().Str("module", "app.hook").Str("producer", string(meta.ProducerID)).Msg("stream metadata sent")
		}
		n.events.Publish(event.NewStreamSent(meta.RoomID, meta.PeerID, meta.ProducerID, meta.Kind, meta.Metadata, errText))
	}()
}

// ReceiveExternalEvent relays an inbound AI-service event verbatim as a
// domain event. The payload shape is not validated.
func (n *Notifier) ReceiveExternalEvent(payload map[string]any) {
	n.events.Publish(event.NewExternalAI(payload))
}

// Flush waits for in-flight deliveries, for orderly shutdown and tests.
func (n *Notifier) Flush() { n.wg.Wait() }

func (n *Notifier) probe(cfg Config) {
	defer n.wg.Done()

	status := StatusFailed
	req, err := http.NewRequest(http.MethodGet, cfg.Endpoint+"/health", nil)
	if err == nil {
		n.authorize(req, cfg)
		resp, perr := n.client.Do(req)
		switch {
		case perr != nil:
			log.Warn().Str("module", "app.hook").Err(perr).Msg("health probe failed")
		case resp.StatusCode == http.StatusOK:
			status = StatusConnected
		default:
			log.Warn().Str("module", "app.hook").Int("status", resp.StatusCode).Msg("health probe unhealthy")
		}
		if perr == nil {
			resp.Body.Close()
		}
	}

	n.mu.Lock()
	// A reconfigure may have raced the probe; only record the result if
	// the config is still the one we probed.
	if n.cfg == cfg {
		n.status = status
	}
	n.mu.Unlock()
	log.Info().Str("module", "app.hook").Str("status", string(status)).Msg("health probe done")
}

func (n *Notifier) post(cfg Config, meta StreamMetadata) error {
	body, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	req, err := http.NewRequest(http.MethodPost, cfg.Endpoint+"/stream", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	n.authorize(req, cfg)

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}

func (n *Notifier) authorize(req *http.Request, cfg Config) {
	if cfg.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+cfg.AuthToken)
	}
}

package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/pion/webrtc/v4"

	"chorus/internal/adapters/rtc"
	"chorus/internal/app/graph"
	"chorus/internal/app/hook"
	"chorus/internal/app/orch"
	"chorus/internal/app/pool"
	"chorus/internal/config"
	"chorus/internal/core"
	"chorus/internal/event"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	hub := event.NewHub()
	workers := pool.New(rtc.NewWorker, hub, pool.Options{Count: 2, Policy: pool.SuperviseDegrade})
	if err := workers.Spawn(); err != nil {
		t.Fatalf("spawn workers: %v", err)
	}

	codecs := []core.MediaCodec{
		{Kind: "audio", Capability: webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2}},
		{Kind: "video", Capability: webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000}},
	}
	sessions := graph.New(workers, hub, graph.Options{Codecs: codecs})

	notifier := hook.NewNotifier(hub)
	notifier.Configure(hook.Config{Enabled: false})

	o := &orch.Orchestrator{Graph: sessions, Pool: workers, Hook: notifier, Events: hub}
	t.Cleanup(o.Close)

	cfg := &config.Config{Mode: "test"}
	srv := httptest.NewServer(SetupRouter(context.Background(), cfg, o))
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, method, url string, body any) (int, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()

	var decoded any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	obj, _ := decoded.(map[string]any) // list endpoints return arrays; callers only check status there
	return resp.StatusCode, obj
}

func TestSessionLifecycleOverREST(t *testing.T) {
	srv := newTestServer(t)
	base := srv.URL + "/api"

	status, body := do(t, http.MethodPost, base+"/rooms/r1", nil)
	if status != http.StatusOK || body["roomId"] != "r1" {
		t.Fatalf("create room: status=%d body=%v", status, body)
	}

	status, body = do(t, http.MethodPost, base+"/rooms/r1/peers/alice", nil)
	if status != http.StatusOK || body["peerId"] != "alice" {
		t.Fatalf("create peer: status=%d body=%v", status, body)
	}

	status, body = do(t, http.MethodPost, base+"/rooms/r1/peers/alice/transports", map[string]any{
		"id": "t-send", "direction": "send",
	})
	if status != http.StatusOK || body["transportId"] != "t-send" {
		t.Fatalf("create transport: status=%d body=%v", status, body)
	}

	status, body = do(t, http.MethodPost, base+"/rooms/r1/peers/alice/transports/t-send/producers", map[string]any{
		"kind": "audio", "metadata": map[string]any{"label": "mic"},
	})
	if status != http.StatusOK {
		t.Fatalf("create producer: status=%d body=%v", status, body)
	}
	producerID, _ := body["producerId"].(string)
	if producerID == "" {
		t.Fatalf("missing producerId in %v", body)
	}

	// Second peer consumes the first peer's stream.
	do(t, http.MethodPost, base+"/rooms/r1/peers/bob", nil)
	do(t, http.MethodPost, base+"/rooms/r1/peers/bob/transports", map[string]any{
		"id": "t-recv", "direction": "recv",
	})
	status, body = do(t, http.MethodPost, base+"/rooms/r1/peers/bob/consumers", map[string]any{
		"producerPeerId":  "alice",
		"producerId":      producerID,
		"transportId":     "t-recv",
		"rtpCapabilities": []map[string]any{{"mimeType": "audio/opus", "clockRate": 48000}},
	})
	if status != http.StatusOK || body["paused"] != true {
		t.Fatalf("create consumer: status=%d body=%v", status, body)
	}
	consumerID, _ := body["consumerId"].(string)

	status, body = do(t, http.MethodPost, base+"/rooms/r1/peers/bob/consumers/"+consumerID+"/resume", nil)
	if status != http.StatusOK || body["resumed"] != true {
		t.Fatalf("resume consumer: status=%d body=%v", status, body)
	}

	status, body = do(t, http.MethodGet, base+"/rooms/r1/peers", nil)
	if status != http.StatusOK {
		t.Fatalf("list peers: status=%d", status)
	}

	status, body = do(t, http.MethodDelete, base+"/rooms/r1", nil)
	if status != http.StatusOK || body["closed"] != true {
		t.Fatalf("close room: status=%d body=%v", status, body)
	}
}

func TestLookupMissesReturn404(t *testing.T) {
	srv := newTestServer(t)
	base := srv.URL + "/api"

	status, _ := do(t, http.MethodPost, base+"/rooms/ghost/peers/alice", nil)
	if status != http.StatusNotFound {
		t.Fatalf("peer in unknown room: status=%d", status)
	}

	do(t, http.MethodPost, base+"/rooms/r1", nil)
	do(t, http.MethodPost, base+"/rooms/r1/peers/alice", nil)
	status, _ = do(t, http.MethodPost, base+"/rooms/r1/peers/alice/transports/nope/producers", map[string]any{"kind": "audio"})
	if status != http.StatusNotFound {
		t.Fatalf("producer on unknown transport: status=%d", status)
	}
}

func TestDirectionConflictReturns409(t *testing.T) {
	srv := newTestServer(t)
	base := srv.URL + "/api"

	do(t, http.MethodPost, base+"/rooms/r1", nil)
	do(t, http.MethodPost, base+"/rooms/r1/peers/alice", nil)
	do(t, http.MethodPost, base+"/rooms/r1/peers/alice/transports", map[string]any{
		"id": "t-recv", "direction": "recv",
	})

	status, _ := do(t, http.MethodPost, base+"/rooms/r1/peers/alice/transports/t-recv/producers", map[string]any{"kind": "audio"})
	if status != http.StatusConflict {
		t.Fatalf("produce on recv transport: status=%d", status)
	}
}

func TestBadRequestsReturn400(t *testing.T) {
	srv := newTestServer(t)
	base := srv.URL + "/api"

	do(t, http.MethodPost, base+"/rooms/r1", nil)
	do(t, http.MethodPost, base+"/rooms/r1/peers/alice", nil)

	status, _ := do(t, http.MethodPost, base+"/rooms/r1/peers/alice/transports", map[string]any{
		"id": "t1", "direction": "sideways",
	})
	if status != http.StatusBadRequest {
		t.Fatalf("bad direction: status=%d", status)
	}

	status, _ = do(t, http.MethodPost, base+"/rooms/r1/peers/alice/transports", map[string]any{"id": "t1"})
	if status != http.StatusBadRequest {
		t.Fatalf("missing direction: status=%d", status)
	}
}

func TestAIEventWebhookAccepted(t *testing.T) {
	srv := newTestServer(t)
	base := srv.URL + "/api"

	status, body := do(t, http.MethodPost, base+"/ai/events", map[string]any{
		"event": "transcript", "text": "hello",
	})
	if status != http.StatusAccepted || body["status"] != "accepted" {
		t.Fatalf("ai event: status=%d body=%v", status, body)
	}
}

func TestHookStatusEndpoint(t *testing.T) {
	srv := newTestServer(t)

	status, body := do(t, http.MethodGet, srv.URL+"/api/hook/status", nil)
	if status != http.StatusOK || body["status"] != string(hook.StatusDisconnected) {
		t.Fatalf("hook status: status=%d body=%v", status, body)
	}
}

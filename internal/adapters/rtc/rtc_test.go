package rtc

import (
	"testing"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"

	"chorus/internal/core"
	"chorus/internal/domain"
)

var testCodecs = []core.MediaCodec{
	{Kind: domain.MediaAudio, Capability: webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2}},
	{Kind: domain.MediaVideo, Capability: webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000}},
}

func newTestRouter(t *testing.T) core.RoutingContext {
	t.Helper()
	worker, err := NewWorker(core.WorkerSettings{})
	if err != nil {
		t.Fatalf("new worker: %v", err)
	}
	t.Cleanup(worker.Close)

	router, err := worker.CreateRoutingContext(testCodecs)
	if err != nil {
		t.Fatalf("create routing context: %v", err)
	}
	return router
}

func newSendTransport(t *testing.T, router core.RoutingContext, id string) core.Transport {
	t.Helper()
	transport, err := router.CreateTransport(core.TransportOptions{ID: domain.TransportID(id), Direction: domain.DirectionSend})
	if err != nil {
		t.Fatalf("create transport: %v", err)
	}
	return transport
}

func TestRoutingContextNeedsCodecs(t *testing.T) {
	worker, err := NewWorker(core.WorkerSettings{})
	if err != nil {
		t.Fatalf("new worker: %v", err)
	}
	t.Cleanup(worker.Close)

	if _, err := worker.CreateRoutingContext(nil); err == nil {
		t.Fatal("expected error for empty codec set")
	}
}

func TestProduceDefaultCodec(t *testing.T) {
	router := newTestRouter(t)
	transport := newSendTransport(t, router, "t1")

	producer, err := transport.Produce(domain.MediaAudio, core.ProducerOptions{})
	if err != nil {
		t.Fatalf("produce: %v", err)
	}
	if producer.Kind() != domain.MediaAudio {
		t.Fatalf("expected audio, got %s", producer.Kind())
	}
	if producer.ID() == "" {
		t.Fatal("producer must get a generated id")
	}
}

func TestCanConsumeCodecMatching(t *testing.T) {
	router := newTestRouter(t)
	transport := newSendTransport(t, router, "t1")
	producer, err := transport.Produce(domain.MediaAudio, core.ProducerOptions{})
	if err != nil {
		t.Fatalf("produce: %v", err)
	}

	matching := core.RTPCapabilities{Codecs: []webrtc.RTPCodecCapability{
		{MimeType: "AUDIO/OPUS", ClockRate: 48000}, // MIME match is case-insensitive
	}}
	if !router.CanConsume(producer.ID(), matching) {
		t.Fatal("expected matching capabilities to be accepted")
	}

	wrongClock := core.RTPCapabilities{Codecs: []webrtc.RTPCodecCapability{
		{MimeType: webrtc.MimeTypeOpus, ClockRate: 8000},
	}}
	if router.CanConsume(producer.ID(), wrongClock) {
		t.Fatal("expected clock-rate mismatch to be refused")
	}

	if router.CanConsume("unknown-producer", matching) {
		t.Fatal("expected unknown producer to be refused")
	}
	if router.CanConsume(producer.ID(), core.RTPCapabilities{}) {
		t.Fatal("expected empty capabilities to be refused")
	}
}

func TestConsumerPausedReceivesNothing(t *testing.T) {
	router := newTestRouter(t)
	send := newSendTransport(t, router, "send")
	recv, err := router.CreateTransport(core.TransportOptions{ID: "recv", Direction: domain.DirectionRecv})
	if err != nil {
		t.Fatalf("create recv transport: %v", err)
	}

	producer, err := send.Produce(domain.MediaAudio, core.ProducerOptions{})
	if err != nil {
		t.Fatalf("produce: %v", err)
	}

	caps := core.RTPCapabilities{Codecs: []webrtc.RTPCodecCapability{
		{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000},
	}}
	consumer, err := recv.Consume(producer.ID(), caps, true)
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if !consumer.Paused() {
		t.Fatal("consumer must start paused")
	}

	pkt := &rtp.Packet{Header: rtp.Header{Version: 2, PayloadType: 111}, Payload: []byte{0x01}}
	for i := 0; i < 5; i++ {
		if err := producer.Write(pkt); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if n := consumer.(*Consumer).written.Load(); n != 0 {
		t.Fatalf("paused consumer must not receive packets, got %d", n)
	}

	consumer.Resume()
	if consumer.Paused() {
		t.Fatal("consumer should run after resume")
	}
	for i := 0; i < 5; i++ {
		if err := producer.Write(pkt); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if n := consumer.(*Consumer).written.Load(); n != 5 {
		t.Fatalf("expected 5 forwarded packets, got %d", n)
	}
}

func TestProducerCloseStopsIngestion(t *testing.T) {
	router := newTestRouter(t)
	transport := newSendTransport(t, router, "t1")
	producer, err := transport.Produce(domain.MediaAudio, core.ProducerOptions{})
	if err != nil {
		t.Fatalf("produce: %v", err)
	}

	closed := make(chan struct{})
	producer.OnClose(func() { close(closed) })
	producer.Close()

	select {
	case <-closed:
	default:
		t.Fatal("OnClose callback never fired")
	}
	if err := producer.Write(&rtp.Packet{}); err == nil {
		t.Fatal("writes after close must fail")
	}
	caps := core.RTPCapabilities{Codecs: []webrtc.RTPCodecCapability{testCodecs[0].Capability}}
	if router.CanConsume(producer.ID(), caps) {
		t.Fatal("closed producer must be unregistered")
	}
}

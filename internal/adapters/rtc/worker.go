// Package rtc is the in-process forwarding engine built on pion. Each
// worker is an isolated execution context; each routing context owns a
// pion API instance configured with the room's codec set and the
// worker's port range.
package rtc

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"chorus/internal/core"
	"chorus/internal/domain"
)

type Worker struct {
	id       domain.WorkerID
	settings core.WorkerSettings

	mu      sync.Mutex
	routers []*Router
	done    chan struct{}
	once    sync.Once
}

// NewWorker satisfies core.WorkerFactory.
func NewWorker(settings core.WorkerSettings) (core.Worker, error) {
	w := &Worker{
		id:       domain.WorkerID("worker-" + uuid.NewString()[:8]),
		settings: settings,
		done:     make(chan struct{}),
	}
	log.Info().Str("module", "rtc.worker").Str("worker", string(w.id)).Uint16("rtc_min_port", settings.RTCMinPort).Uint16("rtc_max_port", settings.RTCMaxPort).Msg("worker up")
	return w, nil
}

func (w *Worker) ID() domain.WorkerID { return w.id }

func (w *Worker) Done() <-chan struct{} { return w.done }

// CreateRoutingContext builds a pion API from the room's codec set and
// the worker's transport settings.
func (w *Worker) CreateRoutingContext(codecs []core.MediaCodec) (core.RoutingContext, error) {
	select {
	case <-w.done:
		return nil, fmt.Errorf("worker %s is down", w.id)
	default:
	}
	if len(codecs) == 0 {
		return nil, fmt.Errorf("routing context needs at least one codec")
	}

	media := &webrtc.MediaEngine{}
	pt := uint8(96)
	for _, c := range codecs {
		kind := webrtc.RTPCodecTypeAudio
		if c.Kind == domain.MediaVideo {
			kind = webrtc.RTPCodecTypeVideo
		}
		err := media.RegisterCodec(webrtc.RTPCodecParameters{
			RTPCodecCapability: c.Capability,
			PayloadType:        webrtc.PayloadType(pt),
		}, kind)
		if err != nil {
			return nil, fmt.Errorf("register codec %s: %w", c.Capability.MimeType, err)
		}
		pt++
	}

	settings := webrtc.SettingEngine{}
	if w.settings.RTCMinPort > 0 && w.settings.RTCMaxPort >= w.settings.RTCMinPort {
		if err := settings.SetEphemeralUDPPortRange(w.settings.RTCMinPort, w.settings.RTCMaxPort); err != nil {
			return nil, fmt.Errorf("set port range: %w", err)
		}
	}

	api := webrtc.NewAPI(webrtc.WithMediaEngine(media), webrtc.WithSettingEngine(settings))
	router := newRouter(w.id, api, codecs)

	w.mu.Lock()
	w.routers = append(w.routers, router)
	w.mu.Unlock()
	return router, nil
}

func (w *Worker) Close() {
	w.once.Do(func() {
		w.mu.Lock()
		routers := w.routers
		w.routers = nil
		w.mu.Unlock()
		for _, r := range routers {
			r.Close()
		}
		close(w.done)
		log.Info().Str("module", "rtc.worker").Str("worker", string(w.id)).Msg("worker closed")
	})
}

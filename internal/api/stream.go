package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/focusops/focus-collector/internal/events"
	"github.com/focusops/focus-collector/internal/focus"
	"github.com/focusops/focus-collector/internal/metrics"
	"github.com/focusops/focus-collector/internal/store"
)

// defaultHeartbeatInterval paces synthetic keep-alive frames so idle proxies
// do not drop the connection between run milestones.
const defaultHeartbeatInterval = 25 * time.Second

// streamEvents relays the run's bus channel to the client as Server-Sent
// Events. The relay is a passive reader: closing the stream never touches the
// run itself, and frames published before the subscription are gone for good.
func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "run_id")

	if _, err := s.store.GetRun(r.Context(), runID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "run not found")
			return
		}
		s.writeError(w, http.StatusInternalServerError, "run lookup failed")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	frames, cancel, err := s.bus.Subscribe(r.Context(), focus.RunChannel(runID))
	if err != nil {
		s.logger.Error("event subscription failed", zap.String("run_id", runID), zap.Error(err))
		s.writeError(w, http.StatusServiceUnavailable, "event stream unavailable")
		return
	}
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	metrics.IncActiveStreams()
	defer metrics.DecActiveStreams()

	logger := s.logger.With(zap.String("run_id", runID))
	logger.Debug("event stream opened")

	heartbeat := time.NewTicker(s.cfg.HeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			logger.Debug("event stream client disconnected")
			return
		case frame, open := <-frames:
			if !open {
				logger.Debug("event stream source closed")
				return
			}
			if err := writeFrame(w, flusher, frame); err != nil {
				logger.Debug("event stream write failed", zap.Error(err))
				return
			}
		case now := <-heartbeat.C:
			frame, err := events.Heartbeat(now).Marshal()
			if err != nil {
				logger.Warn("heartbeat marshal failed", zap.Error(err))
				continue
			}
			if err := writeFrame(w, flusher, frame); err != nil {
				logger.Debug("event stream write failed", zap.Error(err))
				return
			}
		}
	}
}

func writeFrame(w http.ResponseWriter, flusher http.Flusher, frame []byte) error {
	if _, err := fmt.Fprintf(w, "data: %s\n\n", frame); err != nil {
		return fmt.Errorf("write sse frame: %w", err)
	}
	flusher.Flush()
	return nil
}

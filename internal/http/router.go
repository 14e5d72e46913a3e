package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"ai-voice-relay-service/internal/app"
	"ai-voice-relay-service/internal/service/audio"
	"ai-voice-relay-service/internal/service/relay"
)

// Relayer produces a spoken reply for a recording.
type Relayer interface {
	Relay(ctx context.Context, source []byte) (*relay.Reply, error)
}

// NewRouter constructs the HTTP router for the service.
func NewRouter(application *app.Application) http.Handler {
	var relayer Relayer
	if application.Relayer != nil {
		relayer = application.Relayer
	}
	return newRouter(relayer, application.Ready, application.Cfg.Service.MaxUploadBytes)
}

// newRouter builds the router. A nil ready only checks that relayer is set.
func newRouter(relayer Relayer, ready func() error, maxUploadBytes int64) http.Handler {
	if ready == nil {
		ready = func() error {
			if relayer == nil {
				return errors.New("relayer not wired")
			}
			return nil
		}
	}

	r := chi.NewRouter()

	// Basic middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// Health endpoints
	r.Get("/v1/liveness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/v1/readiness", func(w http.ResponseWriter, _ *http.Request) {
		if err := ready(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("not ready: " + err.Error()))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	// API routes
	r.Route("/v1", func(r chi.Router) {
		if relayer != nil {
			r.Post("/relay", relayHandler(relayer, maxUploadBytes))
		}
	})

	return r
}

type errorResponse struct {
	Error    string `json:"error"`
	RelayID  string `json:"relayId,omitempty"`
	Attempts int    `json:"attempts,omitempty"`
}

func relayHandler(relayer Relayer, maxUploadBytes int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := log.With().Str("requestId", middleware.GetReqID(r.Context())).Logger()

		source, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxUploadBytes))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "source audio too large"})
				return
			}
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "failed to read source audio"})
			return
		}
		if len(source) == 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "empty source audio"})
			return
		}

		reply, err := relayer.Relay(r.Context(), source)
		if err != nil {
			resp := errorResponse{Error: err.Error()}
			var rerr *relay.Error
			if errors.As(err, &rerr) {
				resp.RelayID = rerr.RelayID
				resp.Attempts = rerr.Attempts
				w.Header().Set("X-Relay-Id", rerr.RelayID)
				w.Header().Set("X-Relay-Attempts", strconv.Itoa(rerr.Attempts))
			}

			var perr *audio.ProcessingError
			switch {
			case errors.Is(err, audio.ErrNoResponse):
				w.WriteHeader(http.StatusNoContent)
			case errors.As(err, &perr):
				writeJSON(w, http.StatusUnprocessableEntity, resp)
			case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
				writeJSON(w, http.StatusServiceUnavailable, resp)
			default:
				writeJSON(w, http.StatusBadGateway, resp)
			}
			logger.Debug().Err(err).Msg("Relay request answered without audio")
			return
		}

		w.Header().Set("Content-Type", reply.MimeType)
		w.Header().Set("Content-Length", strconv.Itoa(len(reply.Audio)))
		w.Header().Set("X-Relay-Id", reply.RelayID)
		w.Header().Set("X-Relay-Attempts", strconv.Itoa(reply.Attempts))
		w.Header().Set("X-Relay-Session-Id", reply.SessionID)
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(reply.Audio); err != nil {
			logger.Warn().Err(err).Msg("Failed to write reply audio")
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

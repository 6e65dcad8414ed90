package net

import (
	"encoding/json"
	"errors"
	"log"
	nethttp "net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	server "cardquest/server"
	"cardquest/server/internal/ledger"
	"cardquest/server/internal/net/proto"
	"cardquest/server/internal/net/ws"
)

type HTTPHandlerConfig struct {
	ClientDir string
	Logger    *log.Logger
}

// NewHTTPHandler wires the join/diagnostics surface, the websocket endpoint,
// and the static client directory onto one router.
func NewHTTPHandler(hub *server.Hub, svc *ledger.Service, cfg HTTPHandlerConfig) nethttp.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w nethttp.ResponseWriter, _ *nethttp.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("ok"))
	})

	r.Get("/diagnostics", func(w nethttp.ResponseWriter, _ *nethttp.Request) {
		payload := struct {
			Status     string `json:"status"`
			ServerTime int64  `json:"serverTime"`
			Sessions   any    `json:"sessions"`
			Heartbeat  int64  `json:"heartbeatMillis"`
		}{
			Status:     "ok",
			ServerTime: time.Now().UnixMilli(),
			Sessions:   hub.DiagnosticsSnapshot(),
			Heartbeat:  server.HeartbeatInterval().Milliseconds(),
		}
		writeJSON(w, logger, payload)
	})

	r.Post("/join", func(w nethttp.ResponseWriter, _ *nethttp.Request) {
		writeJSON(w, logger, hub.Join())
	})

	r.Get("/schema", func(w nethttp.ResponseWriter, _ *nethttp.Request) {
		writeJSON(w, logger, proto.Schemas())
	})

	r.Get("/players/{playerKey}", func(w nethttp.ResponseWriter, req *nethttp.Request) {
		key := chi.URLParam(req, "playerKey")
		record, err := svc.Player(req.Context(), key)
		if err != nil {
			if errors.Is(err, ledger.ErrPlayerNotFound) {
				httpError(w, "unknown player", nethttp.StatusNotFound)
				return
			}
			logger.Printf("player lookup failed for %s: %v", key, err)
			httpError(w, "store unavailable", nethttp.StatusServiceUnavailable)
			return
		}
		writeJSON(w, logger, record)
	})

	wsHandler := ws.NewHandler(hub, svc, ws.HandlerConfig{Logger: logger})
	r.Get("/ws", wsHandler.Handle)

	if cfg.ClientDir != "" {
		fs := nethttp.FileServer(nethttp.Dir(cfg.ClientDir))
		r.Handle("/*", fs)
	}

	return r
}

func writeJSON(w nethttp.ResponseWriter, logger *log.Logger, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		logger.Printf("failed to encode response: %v", err)
		httpError(w, "failed to encode", nethttp.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

func httpError(w nethttp.ResponseWriter, message string, status int) {
	nethttp.Error(w, message, status)
}

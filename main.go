package main

import (
	"context"
	"encoding/json"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"plaza/server/internal/clock"
	"plaza/server/internal/presence"
	"plaza/server/internal/ws"
	"plaza/server/logging"
)

func main() {
	var (
		addr         string
		logPath      string
		debug        bool
		statePeriod  time.Duration
		rosterPeriod time.Duration
	)
	flag.StringVar(&addr, "addr", ":8080", "server listen address, e.g. :8080")
	flag.StringVar(&logPath, "log", "plaza.log", "log file path (empty for stderr only)")
	flag.BoolVar(&debug, "debug", false, "enable debug logging")
	flag.DurationVar(&statePeriod, "state-period", 0, "override full-snapshot broadcast period")
	flag.DurationVar(&rosterPeriod, "roster-period", 0, "override roster broadcast period")
	flag.Parse()

	logger := logging.New(logPath, debug)
	defer logger.Sync()

	cfg := presence.DefaultConfig()
	if statePeriod > 0 {
		cfg.StatePeriod = statePeriod
	}
	if rosterPeriod > 0 {
		cfg.RosterPeriod = rosterPeriod
	}

	hub := presence.NewHub(cfg, clock.System(), logger)

	stop := make(chan struct{})
	go hub.Run(stop)

	mux := http.NewServeMux()
	mux.Handle("/ws", ws.NewHandler(hub, ws.HandlerConfig{Logger: logger}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/diagnostics", func(w http.ResponseWriter, r *http.Request) {
		count, ids := hub.OnlineCount()
		payload := struct {
			Status     string                   `json:"status"`
			ServerTime int64                    `json:"serverTime"`
			Online     int                      `json:"online"`
			IDs        []string                 `json:"ids"`
			Users      any                      `json:"users"`
			Metrics    presence.MetricsSnapshot `json:"metrics"`
		}{
			Status:     "ok",
			ServerTime: time.Now().UnixMilli(),
			Online:     count,
			IDs:        ids,
			Users:      hub.Liveness(),
			Metrics:    hub.Metrics().Snapshot(),
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(payload)
	})

	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		logger.Infof("plaza presence service listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	close(stop)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(ctx)
}

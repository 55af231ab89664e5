package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/cors"

	"github.com/herbieproject/herbie-dash/internal/alerts"
	"github.com/herbieproject/herbie-dash/internal/api"
	"github.com/herbieproject/herbie-dash/internal/auth"
	"github.com/herbieproject/herbie-dash/internal/config"
	"github.com/herbieproject/herbie-dash/internal/history"
	"github.com/herbieproject/herbie-dash/internal/metrics"
	"github.com/herbieproject/herbie-dash/internal/poller"
	"github.com/herbieproject/herbie-dash/internal/receiver"
	"github.com/herbieproject/herbie-dash/internal/render"
	"github.com/herbieproject/herbie-dash/internal/security"
	"github.com/herbieproject/herbie-dash/internal/shipper"
	"github.com/herbieproject/herbie-dash/internal/source"
	"github.com/herbieproject/herbie-dash/internal/store"
	"github.com/herbieproject/herbie-dash/internal/ws"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	envFile := flag.String("env-file", "", "load secrets (api keys, webhook urls, influx token) from this .env file")
	flag.Parse()

	var level slog.LevelVar
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: &level}))
	slog.SetDefault(logger)

	slog.Info("herbie-dash starting", "config", *configPath)

	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil {
			slog.Error("failed to load env file", "path", *envFile, "err", err)
			os.Exit(1)
		}
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	setLevel(&level, cfg.LogLevel)

	slog.Info("config loaded",
		"http_port", cfg.Server.HTTPPort,
		"sources", len(cfg.Dashboard.Sources),
		"poll_interval", cfg.Dashboard.PollInterval,
		"auth_mode", cfg.Server.Auth.Mode,
		"storage", cfg.Server.Storage.Backend,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Frame store with background TTL eviction.
	st := store.New(cfg.Server.SnapshotTTL)
	go st.Run(ctx)

	m := metrics.New()
	alertEngine := alerts.New(cfg.Server.Alerts)
	infos := sourceInfos(cfg.Dashboard.Sources)

	recvOpts := []receiver.Option{
		receiver.WithAlerts(alertEngine),
		receiver.WithWidgets(widgets(infos)),
	}
	apiOpts := []api.Option{
		api.WithSources(infos),
		api.WithAlerts(alertEngine),
	}

	// Optional reading history.
	if cfg.Server.Storage.Backend == "sqlite" {
		hist, err := history.Open(cfg.Server.Storage.Path)
		if err != nil {
			slog.Error("failed to open history store", "path", cfg.Server.Storage.Path, "err", err)
			os.Exit(1)
		}
		defer hist.Close()
		go hist.Run(ctx, cfg.Server.Storage.Retention)
		recvOpts = append(recvOpts, receiver.WithHistory(hist))
		apiOpts = append(apiOpts, api.WithHistory(hist))
		slog.Info("history enabled", "path", cfg.Server.Storage.Path, "retention", cfg.Server.Storage.Retention)
	}

	// Optional InfluxDB mirror.
	if cfg.Server.Influx.URL != "" {
		ship := shipper.New(cfg.Server.Influx)
		go ship.Run(ctx)
		m.WatchShipperPending(ship.Pending)
		recvOpts = append(recvOpts, receiver.WithShipper(ship))
		slog.Info("influx mirror enabled", "url", cfg.Server.Influx.URL, "bucket", cfg.Server.Influx.Bucket)
	}

	// Certificate checks for HTTPS sources.
	certs := security.NewMonitor(cfg.Dashboard.Sources, cfg.Server.CertCheckInterval)
	if certs.Len() > 0 {
		go certs.Run(ctx)
		apiOpts = append(apiOpts, api.WithCerts(certs))
	}

	recv := receiver.New(st, recvOpts...)

	// WebSocket hub: pushes on every fresh frame and on the broadcast tick.
	hub := ws.New(st, cfg.Server.BroadcastInterval,
		ws.WithSources(infos),
		ws.WithOrigins(cfg.Server.CORSOrigins),
	)
	go hub.Run(ctx)
	m.WatchWSClients(hub.Count)

	renderer := poller.RendererFunc(func(f *poller.Frame) {
		recv.Render(f)
		hub.Notify()
	})

	// One poll loop per source.
	pollers := make(map[string]*poller.Poller, len(cfg.Dashboard.Sources))
	var wg sync.WaitGroup
	for _, src := range cfg.Dashboard.Sources {
		reader, err := source.New(src)
		if err != nil {
			slog.Error("skipping source, could not build reader", "source", src.ID, "err", err)
			continue
		}
		settings := poller.SettingsFor(cfg.Dashboard, src)
		settings.Observer = m
		p := poller.New(src.ID, reader, renderer, settings)
		pollers[src.ID] = p

		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Run(ctx)
		}()
		slog.Info("registered source", "id", src.ID, "type", src.Type)
	}
	if len(pollers) == 0 {
		slog.Warn("no sources configured, dashboard will idle")
	}

	// Hot-reload: log level, poll interval and per-source normalization.
	// Adding or removing sources requires a restart.
	go func() {
		if err := config.Watch(ctx, *configPath, func(updated *config.Config, diff config.SourceDiff) {
			setLevel(&level, updated.LogLevel)
			for _, id := range diff.Added {
				slog.Warn("config: new source ignored until restart", "source", id)
			}
			for _, id := range diff.Removed {
				slog.Warn("config: removed source keeps polling until restart", "source", id)
			}
			changed := make(map[string]bool, len(diff.Changed))
			for _, id := range diff.Changed {
				changed[id] = true
			}
			for _, src := range updated.Dashboard.Sources {
				p, ok := pollers[src.ID]
				if !ok {
					continue
				}
				p.SetInterval(updated.Dashboard.PollInterval)
				if changed[src.ID] {
					p.SetOptions(poller.NormalizeOptions(src.Normalize))
				}
			}
		}); err != nil {
			slog.Error("config watcher stopped", "err", err)
		}
	}()

	// Combined HTTP server: REST API, WebSocket hub and /metrics.
	apiHandler := api.New(st, apiOpts...)
	router := apiHandler.Router()
	router.Handle("/ws/stream", hub)
	router.Handle("/metrics", m.Handler())

	var handler http.Handler = auth.Middleware(
		cfg.Server.Auth.Mode,
		cfg.Server.Auth.EffectiveHeader(),
		cfg.Server.Auth.Key(),
		"/metrics", "/api/v1/health",
	)(router)
	handler = corsHandler(cfg.Server.CORSOrigins, cfg.Server.Auth.EffectiveHeader()).Handler(handler)

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("HTTP server listening", "port", cfg.Server.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server stopped", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("herbie-dash shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	httpSrv.Shutdown(shutdownCtx) //nolint:errcheck
	wg.Wait()
}

// setLevel applies a config log level; validation already rejected unknown
// names.
func setLevel(level *slog.LevelVar, name string) {
	if err := level.UnmarshalText([]byte(name)); err != nil {
		slog.Warn("unknown log level, keeping current", "level", name)
	}
}

// sourceInfos maps each configured source to the chart and widget settings
// the API and hub render with.
func sourceInfos(sources []config.Source) map[string]api.SourceInfo {
	out := make(map[string]api.SourceInfo, len(sources))
	for _, src := range sources {
		info := api.SourceInfo{
			Type: src.Type,
			Chart: render.ChartOptions{
				Title:  src.Chart.Title,
				Tail:   src.Chart.Tail,
				Colors: src.Chart.Colors,
			},
		}
		for _, mc := range src.Metrics {
			info.Widgets = append(info.Widgets, render.MetricSpec{Channel: mc.Channel, Label: mc.Label})
		}
		out[src.ID] = info
	}
	return out
}

func widgets(infos map[string]api.SourceInfo) map[string][]render.MetricSpec {
	out := make(map[string][]render.MetricSpec, len(infos))
	for id, info := range infos {
		out[id] = info.Widgets
	}
	return out
}

// corsHandler allows every origin when none are configured.
func corsHandler(origins []string, keyHeader string) *cors.Cors {
	if len(origins) == 0 {
		return cors.AllowAll()
	}
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", keyHeader},
	})
}

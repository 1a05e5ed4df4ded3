// Command sideboard runs a sidebar server: it keeps a titled scoreboard in
// sync with every connected viewer, over local WebSockets or NATS subjects.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/odvcencio/sideboard/pkg/config"
	"github.com/odvcencio/sideboard/pkg/observability"
	"github.com/odvcencio/sideboard/pkg/scheduler"
	"github.com/odvcencio/sideboard/pkg/sidebar"
	"github.com/odvcencio/sideboard/pkg/text"
	"github.com/odvcencio/sideboard/pkg/transport/natsbus"
	"github.com/odvcencio/sideboard/pkg/transport/ws"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "sideboard: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := observability.NewLogger("server", observability.ParseLevel(cfg.Logging.Level))
	sched := scheduler.NewTicker()
	provider := text.NewANSI()

	tp, err := observability.NewTracerProvider("sideboard")
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tp.Shutdown(shutdownCtx)
	}()

	var (
		sb   *sidebar.Sidebar[string]
		hub  *ws.Hub
		nt   *natsbus.Transport
		opts = []sidebar.Option{
			sidebar.WithLogger(logger),
			sidebar.WithTitlePeriod(cfg.Sidebar.TitlePeriod),
		}
	)

	if cfg.NATS.Enabled {
		nt, err = natsbus.New(natsbus.Config{
			URL:           cfg.NATS.URL,
			Name:          cfg.NATS.Name,
			SubjectPrefix: cfg.NATS.SubjectPrefix,
			Timeout:       cfg.NATS.Timeout,
		})
		if err != nil {
			return err
		}
		defer nt.Close()
		sb, err = buildSidebar(cfg, provider, nt, sched, opts)
	} else {
		hub = ws.NewHub(logger)
		sb, err = buildSidebar(cfg, provider, hub, sched, opts)
	}
	if err != nil {
		return err
	}

	if hub != nil {
		hub.OnDisconnect(func(id uuid.UUID) {
			if rerr := sb.RemoveViewer(id); rerr != nil {
				logger.Warn("viewer teardown failed",
					slog.String("viewer_id", id.String()),
					slog.String("error", rerr.Error()),
				)
			}
		})
	}

	if err := addLines(sb, cfg, provider); err != nil {
		return err
	}
	if cfg.Sidebar.RefreshPeriod > 0 {
		if _, err := sb.UpdateLinesPeriodically(cfg.Sidebar.RefreshPeriod, cfg.Sidebar.RefreshPeriod); err != nil {
			return err
		}
	}

	router := newRouter(sb, hub, nt, logger)

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening",
			slog.String("addr", cfg.Listen),
			slog.String("objective_id", sb.ObjectiveID()),
			slog.Bool("nats", cfg.NATS.Enabled),
		)
		if serr := srv.ListenAndServe(); serr != nil && serr != http.ErrServerClosed {
			errCh <- serr
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		return err
	}

	if derr := sb.Destroy(); derr != nil {
		logger.Warn("sidebar teardown incomplete", slog.String("error", derr.Error()))
	}
	if hub != nil {
		hub.Shutdown()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func buildSidebar(cfg *config.Config, provider text.Provider[string], transport sidebar.Transport[string], sched scheduler.Scheduler, opts []sidebar.Option) (*sidebar.Sidebar[string], error) {
	if len(cfg.Sidebar.TitleFrames) > 0 {
		iter, err := text.FramesOf(cfg.Sidebar.TitleFrames...)
		if err != nil {
			return nil, err
		}
		return sidebar.NewAnimated[string](iter, provider, transport, sched, opts...)
	}
	return sidebar.New[string](cfg.Sidebar.Title, provider, transport, sched, opts...)
}

func addLines(sb *sidebar.Sidebar[string], cfg *config.Config, provider text.Provider[string]) error {
	for _, line := range cfg.Sidebar.Lines {
		if line == "" {
			if _, err := sb.AddBlankLine(); err != nil {
				return err
			}
			continue
		}
		if _, err := sb.AddTextLine(line); err != nil {
			return err
		}
	}

	// Trailing clock line so an idle board still visibly ticks.
	_, err := sb.AddUpdatableLine(func(uuid.UUID) (string, error) {
		return provider.FromLegacyMessage("&7" + time.Now().Format("15:04:05"))
	})
	if err != nil {
		return err
	}
	return sb.UpdateAllLines()
}

func newRouter(sb *sidebar.Sidebar[string], hub *ws.Hub, nt *natsbus.Transport, logger *observability.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	if hub != nil {
		r.Get("/ws", func(w http.ResponseWriter, req *http.Request) {
			viewer := uuid.New()
			if err := hub.Attach(viewer, w, req); err != nil {
				logger.Warn("attach failed", slog.String("error", err.Error()))
				return
			}
			if err := sb.AddViewer(viewer); err != nil {
				logger.Warn("viewer sync failed",
					slog.String("viewer_id", viewer.String()),
					slog.String("error", err.Error()),
				)
				hub.Detach(viewer)
			}
		})
	}

	if nt != nil {
		// Gateway presence API: edge processes announce their viewers and
		// receive frames on the per-viewer NATS subject.
		r.Put("/viewers/{id}", func(w http.ResponseWriter, req *http.Request) {
			viewer, err := uuid.Parse(chi.URLParam(req, "id"))
			if err != nil {
				http.Error(w, "invalid viewer id", http.StatusBadRequest)
				return
			}
			nt.Announce(viewer)
			if err := sb.AddViewer(viewer); err != nil {
				logger.Warn("viewer sync failed",
					slog.String("viewer_id", viewer.String()),
					slog.String("error", err.Error()),
				)
				http.Error(w, "sync failed", http.StatusBadGateway)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		})
		r.Delete("/viewers/{id}", func(w http.ResponseWriter, req *http.Request) {
			viewer, err := uuid.Parse(chi.URLParam(req, "id"))
			if err != nil {
				http.Error(w, "invalid viewer id", http.StatusBadRequest)
				return
			}
			if err := sb.RemoveViewer(viewer); err != nil {
				logger.Warn("viewer teardown failed",
					slog.String("viewer_id", viewer.String()),
					slog.String("error", err.Error()),
				)
			}
			nt.Withdraw(viewer)
			w.WriteHeader(http.StatusNoContent)
		})
	}

	return r
}

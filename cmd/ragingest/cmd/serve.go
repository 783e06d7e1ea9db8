package cmd

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/ragingest/internal/config"
	"github.com/Aman-CERP/ragingest/internal/notify"
	"github.com/Aman-CERP/ragingest/internal/watcher"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd() *cobra.Command {
	var (
		listen string
		watch  bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Consume the queue and serve notifications",
		Long: `Poll the queue and process each batch, push progress notifications to
connected websocket clients, and optionally watch the storage root for
changes to publish onto the queue.

Clients connect to ws://<listen_addr><notify.path>?token=<session-token>
(or send it as an Authorization: Bearer header) and receive a notification
as each of the token owner's documents is processed. Tokens are signed with
notify.token_secret; see the token command.`,
		Example: `  # Serve with ./ragingest.yaml
  ragingest serve

  # Also publish changes made under storage.root
  ragingest serve --watch --listen 0.0.0.0:8787`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := currentConfig()
			if cmd.Flags().Changed("listen") {
				cfg.Notify.ListenAddr = listen
			}
			if cmd.Flags().Changed("watch") {
				cfg.Watcher.Enabled = watch
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			ln, err := net.Listen("tcp", cfg.Notify.ListenAddr)
			if err != nil {
				return fmt.Errorf("failed to listen on %s: %w", cfg.Notify.ListenAddr, err)
			}
			return runServe(ctx, cfg, ln)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "Listen address (overrides notify.listen_addr)")
	cmd.Flags().BoolVar(&watch, "watch", false, "Publish changes under storage.root (overrides watcher.enabled)")

	return cmd
}

// runServe runs the poll loop, the notification hub and the optional bucket
// watcher until ctx is done or one of them fails. ln is closed on return.
func runServe(ctx context.Context, cfg *config.Config, ln net.Listener) error {
	tokens, err := sessionTokens(cfg)
	if err != nil {
		_ = ln.Close()
		return err
	}

	svc, err := openServices(ctx, cfg)
	if err != nil {
		_ = ln.Close()
		return err
	}
	defer func() { _ = svc.Close() }()

	hub := notify.NewHub(tokens, cfg.Notify.OriginPatterns...)
	channel := notify.NewChannel(notify.ChannelConfig{
		Sender:          hub,
		SendTimeout:     cfg.Notify.SendTimeout,
		BreakerFailures: cfg.Notify.BreakerFailures,
		BreakerReset:    cfg.Notify.BreakerReset,
	})
	poller := svc.poller(svc.processor(channel, hub), nil)

	mux := http.NewServeMux()
	mux.Handle(cfg.Notify.Path, hub)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":   "ok",
			"sessions": hub.Sessions(),
			"breaker":  channel.BreakerState().String(),
		})
	})
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	watching := false
	if cfg.Watcher.Enabled {
		lock := watcher.NewRootLock(svc.objects.Root)
		watching, err = lock.TryLock()
		if err != nil {
			_ = ln.Close()
			return err
		}
		if watching {
			defer func() { _ = lock.Unlock() }()
		} else {
			slog.Warn("watcher_lock_held", slog.String("lock", lock.Path()))
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("notification server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		hub.Close()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		return poller.Run(gctx)
	})

	if watching {
		bw := watcher.NewBucketWatcher(svc.objects, svc.queue, watcher.Options{
			DebounceWindow: cfg.Watcher.Debounce,
			PollInterval:   cfg.Watcher.PollInterval,
			ForcePolling:   cfg.Watcher.ForcePolling,
		})
		g.Go(func() error {
			return bw.Run(gctx, svc.objects.Root)
		})
	}

	slog.Info("serve_started",
		slog.String("listen_addr", ln.Addr().String()),
		slog.String("path", cfg.Notify.Path),
		slog.Bool("watcher", watching))

	err = g.Wait()
	slog.Info("serve_stopped")
	return err
}

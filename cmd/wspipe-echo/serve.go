package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/luciancaetano/wspipe"
)

const shutdownTimeout = 5 * time.Second

type chatMessage struct {
	Room    string `json:"room"`
	Author  string `json:"author"`
	Message string `json:"message"`
}

func serveCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the demo server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), addr)
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", ":8080", "address to listen on")
	return cmd
}

func runServe(ctx context.Context, addr string) error {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	reg := prometheus.NewRegistry()
	metrics := wspipe.NewMetrics(reg)

	server := wspipe.New(wspipe.Config{
		Addr:        addr,
		CheckOrigin: func(r *http.Request) bool { return true },
		RateLimit:   wspipe.DefaultRateLimitConfig(),
		Metrics:     metrics,
	})

	server.OnConnection(func(c *wspipe.Client) {
		logger.Info("client connected", "client_id", c.ID())
	})
	server.OnInvokeError(func(err error, c *wspipe.Client, raw string) {
		logger.Error("invoke failed", "client_id", c.ID(), "error", err, "frame", raw)
	})

	if err := server.RegisterRoute("/echo", func(c wspipe.Context, next wspipe.Next) (any, error) {
		var body map[string]any
		if err := c.Unmarshal(&body); err != nil {
			return nil, err
		}
		return body, nil
	}); err != nil {
		return fmt.Errorf("register /echo: %w", err)
	}

	// /rooms/:room/join subscribes the caller to /rooms/:room. A caller not
	// yet subscribed is sent, as initial data, the room name and a freshly
	// minted session id of its own; a repeat join sends nothing.
	if err := server.RegisterRoute("/rooms/:room/join", requestLogger(logger), func(c wspipe.Context, next wspipe.Next) (any, error) {
		room := c.Params["room"]
		path := "/rooms/" + room
		server.Subscribe(c.Client, path, wspipe.Deferred(func() (any, bool) {
			return map[string]string{"room": room, "sessionId": uuid.NewString()}, true
		}))
		return map[string]string{"joined": room}, nil
	}); err != nil {
		return fmt.Errorf("register /rooms/:room/join: %w", err)
	}

	if err := server.RegisterRoute("/rooms/:room/send", requestLogger(logger), func(c wspipe.Context, next wspipe.Next) (any, error) {
		var msg chatMessage
		if err := c.Unmarshal(&msg); err != nil {
			return nil, err
		}
		msg.Room = c.Params["room"]
		server.Publish("/rooms/"+msg.Room, msg)
		return nil, nil
	}); err != nil {
		return fmt.Errorf("register /rooms/:room/send: %w", err)
	}

	mux := chi.NewRouter()
	mux.Handle("/ws", server.UpgradeHandler())
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	httpServer := &http.Server{Addr: addr, Handler: mux}

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-runCtx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	}
}

func requestLogger(logger *slog.Logger) wspipe.Handler {
	return func(c wspipe.Context, next wspipe.Next) (any, error) {
		logger.Debug("invoke", "client_id", c.Client.ID(), "path", c.Path)
		return next(c)
	}
}

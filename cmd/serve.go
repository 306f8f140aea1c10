package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/desertthunder/subsync/internal/server"
	"github.com/urfave/cli/v3"
)

const shutdownGrace = 10 * time.Second

// Serve runs the HTTP API with queue consumers in-process.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	r.reloadConfig(cmd.String("config"))

	host := r.config.Server.Host
	port := r.config.Server.Port
	if v := cmd.String("host"); v != "" {
		host = v
	}
	if v := cmd.Int("port"); v != 0 {
		port = int(v)
	}

	d, err := r.openDeps()
	if err != nil {
		return err
	}
	defer d.close()

	d.q.Subscribe(d.consumer.HandleBatch)
	d.q.SubscribeDLQ(d.dlq.HandleBatch)

	addr := fmt.Sprintf("%s:%d", host, port)
	srv := server.New(d.admission, d.tracker, d.dlq, addr, r.logger)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Start()
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return nil
}

// Worker runs only the queue consumers, for deployments that split the API
// from the processing fleet.
func (r *Runner) Worker(ctx context.Context, cmd *cli.Command) error {
	r.reloadConfig(cmd.String("config"))

	d, err := r.openDeps()
	if err != nil {
		return err
	}
	defer d.close()

	d.q.Subscribe(d.consumer.HandleBatch)
	d.q.SubscribeDLQ(d.dlq.HandleBatch)

	r.logger.Info("worker started")

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	r.logger.Info("worker shutting down")
	return nil
}

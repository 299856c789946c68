package cmd

import (
	"context"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/rapidmidiex/miditip/internal/server"
)

func runServer(cCtx *cli.Context) error {
	cfg, err := serverConfig(cCtx)
	if err != nil {
		return err
	}

	log := newLogger(cCtx.Bool("dev"))

	sCtx, cancel := signal.NotifyContext(
		cCtx.Context,
		syscall.SIGHUP,
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT,
	)
	defer cancel()

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return errors.Wrapf(err, "listen %s", cfg.Addr)
	}

	srv := server.New(
		server.WithLogger(log),
		server.WithTick(cfg.Tick),
		server.WithHandshakeTimeout(cfg.Handshake),
		server.WithQueueSize(cfg.Queue),
		server.WithOrigins(cfg.Origins...),
	)

	g, gCtx := errgroup.WithContext(sCtx)

	g.Go(func() error { return srv.Run(gCtx) })
	g.Go(func() error { return srv.Serve(gCtx, ln) })

	if cfg.HTTP != "" {
		h := http.Server{
			Addr:    cfg.HTTP,
			Handler: srv.Handler(),
			// WebSocket sessions are long lived; only the request is bounded
			ReadHeaderTimeout: 10 * time.Second,
			// max time for connections using TCP Keep-Alive
			IdleTimeout: 120 * time.Second,
			BaseContext: func(_ net.Listener) context.Context { return gCtx },
		}

		g.Go(func() error {
			log.Info().Str("addr", h.Addr).Msg("http server starting")
			if err := h.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})

		g.Go(func() error {
			<-gCtx.Done()
			return h.Shutdown(context.Background())
		})
	}

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("exit")
		return err
	}
	return nil
}

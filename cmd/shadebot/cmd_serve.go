package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"shadebot/internal/channel"
	"shadebot/internal/logging"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP channel and, when enabled, the AMQP consumer",
	Long: `Starts the HTTP API (/v1/messages, /v1/conversations, /metrics, /healthz).

When amqp.enabled is set (or SHADEBOT_AMQP_URL is exported) the bot also
consumes inbound chat events from the hub exchange and publishes replies.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "HTTP listen address (overrides server.http_addr)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, ctx, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	addr := cfg.Server.HTTPAddr
	if serveAddr != "" {
		addr = serveAddr
	}
	srv := channel.NewServer(a.dispatcher, cfg.Server.Mode)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(gctx, addr)
	})

	if cfg.AMQP.Enabled {
		pub, err := channel.DialPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange)
		if err != nil {
			return err
		}
		defer pub.Close()

		consumer, err := channel.DialConsumer(cfg.AMQP, channel.NewBus(a.dispatcher, pub, cfg.AMQP))
		if err != nil {
			return err
		}
		defer consumer.Close()

		g.Go(func() error {
			return consumer.Run(gctx)
		})
	}

	err = g.Wait()
	if err == nil || err == context.Canceled {
		logging.Boot("shutdown complete")
		return nil
	}
	return err
}

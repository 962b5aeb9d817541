package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/SmitUplenchwar2687/gatekeeper/internal/admission"
	"github.com/SmitUplenchwar2687/gatekeeper/internal/server"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd(g *globalOptions) *cobra.Command {
	var (
		addr           string
		recordFile     string
		streamPath     string
		trustedProxies []string
		storage        storageOptions
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the admission-control HTTP server",
		Long: `Starts an HTTP server that answers admission checks.

Endpoints:
  GET  /                 Server info and current time
  GET  /health           Health check
  GET  /api/check        Admission check (identifier, type, ip, user, endpoint, cost)
  GET  /api/stats        Aggregate statistics (period=1h)
  GET  /api/limits       Configured limit classes
  GET  /dashboard        Live decision feed
  WS   /ws               WebSocket stream of decision events`,
		Example: `  gatekeeper serve
  gatekeeper serve --config gatekeeper.yaml --addr :9090
  gatekeeper serve --storage redis --redis-host localhost:6379
  gatekeeper serve --cluster --gossip-addr :7946 --peers 10.0.0.2:7946,10.0.0.3:7946
  gatekeeper serve --record events.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.Server.Addr = addr
			}
			if cmd.Flags().Changed("trusted-proxies") {
				cfg.Server.TrustedProxies = trustedProxies
			}
			proxies, err := server.ParseTrustedProxies(cfg.Server.TrustedProxies)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("stream") {
				cfg.Recorder.StreamPath = streamPath
			}
			storage.applyConfigIfUnset(cmd, &cfg)
			if err := storage.normalize(); err != nil {
				return err
			}
			storage.writeTo(&cfg)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			ctrl, err := admission.NewFromConfig(ctx, cfg, admission.BuildOptions{})
			if err != nil {
				return err
			}
			defer ctrl.Close()

			srv := server.New(cfg.Server.Addr, ctrl, nil)
			srv.TrustProxies(proxies)
			log.WithField("url", "http://localhost"+cfg.Server.Addr+"/dashboard").Info("dashboard available")

			errCh := make(chan error, 1)
			go func() {
				errCh <- srv.Start()
			}()

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-ctx.Done():
				log.Info("shutting down")
				if recordFile != "" {
					exportRecording(ctrl, recordFile)
				}
				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			}
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8080", "address to listen on")
	cmd.Flags().StringSliceVar(&trustedProxies, "trusted-proxies", nil, "proxy IPs or CIDRs whose X-Forwarded-For is trusted")
	cmd.Flags().StringVar(&recordFile, "record", "", "export captured decision events to this JSON file on shutdown")
	cmd.Flags().StringVar(&streamPath, "stream", "", "append every decision event to this NDJSON file")
	storage.addFlags(cmd)

	return cmd
}

func exportRecording(ctrl *admission.Controller, path string) {
	type exporter interface {
		ExportFile(path string) error
		Len() int
	}
	rec, ok := ctrl.Recorder().(exporter)
	if !ok {
		log.Warn("recorder does not support export")
		return
	}
	entry := log.WithFields(log.Fields{"events": rec.Len(), "path": path})
	if err := rec.ExportFile(path); err != nil {
		entry.WithError(err).Error("exporting events failed")
		return
	}
	entry.Info("exported events")
}

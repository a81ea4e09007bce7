package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	ragchat "github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/ragchat"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/ragchat/api"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/ragchat/common/logger"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/ragchat/metrics"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var transport, addr, metricsAddr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the chat, get-history and clear-session tools over MCP",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if transport == "" {
				transport = cfg.Server.MCPTransport
			}
			if addr == "" {
				addr = cfg.Server.MCPAddr
			}
			if metricsAddr == "" {
				metricsAddr = cfg.Server.MetricsAddr
			}

			client, err := ragchat.NewRAGClient(ctx, cfg)
			if err != nil {
				return err
			}
			defer client.Close()

			metrics.Register()
			stopMetrics := serveMetrics(metricsAddr)
			defer stopMetrics()

			mcpServer := ragchat.NewServer("ragchat", client)
			switch transport {
			case "stdio":
				logger.Infof("serve: MCP over stdio")
				return server.ServeStdio(mcpServer)
			case "http":
				httpServer := server.NewStreamableHTTPServer(mcpServer)
				errCh := make(chan error, 1)
				go func() {
					logger.Infof("serve: MCP over streamable HTTP on %s", addr)
					errCh <- httpServer.Start(addr)
				}()
				select {
				case err := <-errCh:
					if errors.Is(err, http.ErrServerClosed) {
						return nil
					}
					return err
				case <-ctx.Done():
				}
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return httpServer.Shutdown(shutdownCtx)
			default:
				return fmt.Errorf("unknown MCP transport %q (want stdio or http)", transport)
			}
		},
	}
	cmd.Flags().StringVar(&transport, "transport", "", "MCP transport: stdio or http (default from config)")
	cmd.Flags().StringVar(&addr, "addr", "", "listen address for the http transport (default from config)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "prometheus listen address; empty disables (default from config)")
	return cmd
}

func newAPICmd(opts *rootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "api",
		Short: "Serve the REST API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if addr == "" {
				addr = cfg.Server.APIAddr
			}
			client, err := ragchat.NewRAGClient(ctx, cfg)
			if err != nil {
				return err
			}
			defer client.Close()

			metrics.Register()
			return api.Run(ctx, addr, client)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	return cmd
}

// serveMetrics exposes the default prometheus registry on addr and returns a stop func.
func serveMetrics(addr string) func() {
	if addr == "" {
		return func() {}
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Infof("serve: metrics on %s/metrics", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warnf("serve: metrics server stopped: %v", err)
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"matchbook/src/api"
	"matchbook/src/registry"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "matchbook",
		Short: "In-memory limit order book matching engine",
	}
	root.AddCommand(newServeCmd())
	return root
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP/WebSocket matching engine server",
		RunE:  runServe,
	}

	flags := cmd.Flags()
	flags.String("addr", ":8080", "address to listen on")
	flags.Int("depth", 10, "default order book snapshot depth")
	flags.StringSlice("symbols", []string{"BTC-USD"}, "symbols to pre-warm books for")

	v := viper.New()
	v.SetEnvPrefix("LOB")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	_ = v.BindPFlags(flags)
	if cfgFile := os.Getenv("LOB_CONFIG"); cfgFile != "" {
		v.SetConfigFile(cfgFile)
		_ = v.ReadInConfig()
	}
	cmd.SetContext(context.WithValue(context.Background(), viperKey{}, v))

	return cmd
}

type viperKey struct{}

func runServe(cmd *cobra.Command, _ []string) error {
	v, _ := cmd.Context().Value(viperKey{}).(*viper.Viper)
	if v == nil {
		v = viper.New()
	}

	addr := v.GetString("addr")
	depth := v.GetInt("depth")
	symbols := v.GetStringSlice("symbols")

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	promReg := prometheus.NewRegistry()

	// Server.Observe needs a *Server, but Registry.New needs the observer
	// up front; the pointer is filled in once NewServer returns, which is
	// safe because no trade can occur before the HTTP listener starts.
	var srv *api.Server
	reg := registry.New(func(symbol string, report registry.ReportedTrade) {
		if srv != nil {
			srv.Observe(symbol, report)
		}
	})
	srv = api.NewServer(reg, promReg, log, depth)

	for _, s := range symbols {
		reg.Warm(s)
	}

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      srv,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-sigCh:
		log.Info().Msg("shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(ctx)
}

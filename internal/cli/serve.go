package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"charrag/internal/adapter/llm"
	"charrag/internal/metrics"
	"charrag/internal/server"
)

var (
	serveAddr  string
	serveWatch bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Serve retrieval, chat and index management over HTTP, with Prometheus
metrics on /metrics.

Examples:
  charrag serve
  charrag serve --addr :9000 --watch`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")
	serveCmd.Flags().BoolVar(&serveWatch, "watch", false, "rebuild characters when their definition changes")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	a, err := newApp(m)
	if err != nil {
		return err
	}
	defer a.Close()

	model, err := llm.New(a.cfg.LLM)
	if err != nil {
		return err
	}
	defaults, err := server.DefaultsFromConfig(a.cfg)
	if err != nil {
		return err
	}
	retriever := a.retriever()
	responder := a.responder(retriever, model)

	srvCfg := a.cfg.Server
	if serveAddr != "" {
		srvCfg.Addr = serveAddr
	}
	srv := server.NewServer(a.catalog, a.registry, retriever, responder, defaults, m, srvCfg, a.logger)

	if serveWatch {
		go func() {
			if err := watchCharacters(ctx, a); err != nil {
				a.logger.Error("watcher stopped", zap.Error(err))
			}
		}()
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.Start() }()
	fmt.Printf("Serving %d character(s) on %s with %s/%s\n",
		len(a.catalog.List()), srvCfg.Addr, model.ProviderName(), model.ModelName())

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	a.logger.Info("shutting down")
	return srv.Stop(shutdownCtx)
}

package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kartikbazzad/dlsc"
	"github.com/kartikbazzad/dlsc/internal/httpapi"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the coordinator as a long-lived service",
	Long: `serve starts the timeout monitor, adopts any pre-existing tasks
left in the coordination store, and (if http.listen is configured) hosts
the admin introspection and control API.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func runServe(ctx context.Context) error {
	cfg, backend, err := loadConfigAndStore()
	if err != nil {
		return err
	}
	defer backend.Close()

	auditLogger, err := dlsc.NewAuditLogger(cfg.AuditPath)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	defer auditLogger.Close()

	coord := dlsc.New(backend, cfg, dlsc.WithAudit(auditLogger))

	if err := coord.Start(ctx, false); err != nil {
		return fmt.Errorf("start coordinator: %w", err)
	}
	defer coord.Stop()

	var httpServer *http.Server
	if cfg.HTTPListen != "" {
		srv, err := httpapi.NewServer(coord)
		if err != nil {
			return fmt.Errorf("build admin api: %w", err)
		}
		httpServer = &http.Server{Addr: cfg.HTTPListen, Handler: srv.Handler()}
		go func() {
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				exitWithError("admin api", err)
			}
		}()
		fmt.Printf("dlscd: admin api listening on %s\n", cfg.HTTPListen)
	}

	fmt.Printf("dlscd: coordinator %s running (store=%s)\n", coord.SelfID(), cfg.StoreBackend)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	fmt.Println("dlscd: shutting down")
	if httpServer != nil {
		_ = httpServer.Shutdown(context.Background())
	}
	return nil
}

package cmd

import (
	"fmt"

	"github.com/kartikbazzad/dlsc"
)

// loadConfigAndStore applies CLI flag overrides on top of the ambient
// config loader, then opens the matching coordination-store backend.
func loadConfigAndStore() (*dlsc.Config, dlsc.StoreClient, error) {
	cfg, err := dlsc.LoadConfig(configFile)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if storeBackend != "" {
		cfg.StoreBackend = storeBackend
	}
	if sqlitePath != "" {
		cfg.StoreSQLitePath = sqlitePath
	}

	backend, err := openStore(cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, backend, nil
}

func openStore(cfg *dlsc.Config) (dlsc.StoreClient, error) {
	switch cfg.StoreBackend {
	case "", "memory":
		return dlsc.NewMemStore(32)
	case "sqlite":
		return dlsc.NewSQLiteStore(cfg.StoreSQLitePath, 32)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

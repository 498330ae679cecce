package app

import (
	"context"
	"fmt"
	"strings"

	"gatebot/internal/config"
	"gatebot/internal/storage"
	"gatebot/internal/validate"
	logx "gatebot/pkg/logx"
)

const defaultSQLitePath = "./gatebot.db"

func mapStorageConfig(cfg *config.Config, r config.Resolved) storage.Config {
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" {
		driver = "sqlite"
	}
	out := storage.Config{Driver: driver, BusyTimeout: r.BusyTimeout, MaxConns: sc.MaxConns}
	switch driver {
	case "postgres":
		out.DSN = strings.TrimSpace(sc.DSN)
	default:
		out.Path = strings.TrimSpace(sc.Path)
		if out.Path == "" {
			out.Path = defaultSQLitePath
		}
	}
	return out
}

// OpenStorage opens the database named by the config file at cfgPath. It is
// for tools that run beside the bot; the config is decoded but only the
// storage section must be valid.
func OpenStorage(ctx context.Context, cfgPath string, log logx.Logger) (*storage.DB, error) {
	cfg, err := config.NewManager(cfgPath, log).Parse()
	if err != nil {
		return nil, err
	}
	if err := validate.Struct(cfg.Storage); err != nil {
		return nil, fmt.Errorf("storage config: %w", err)
	}
	res, err := cfg.Resolve()
	if err != nil {
		return nil, err
	}
	return storage.Open(ctx, mapStorageConfig(cfg, res), log)
}

package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/lunadb/internal/config"
	"github.com/roach88/lunadb/internal/db"
	"github.com/roach88/lunadb/internal/identity"
	"github.com/roach88/lunadb/internal/kv"
	"github.com/roach88/lunadb/internal/service"
)

// openService opens the configured backend and builds a service over it.
// The returned close function releases the backend.
func openService(ctx context.Context, cfg config.Config, logger *slog.Logger) (*service.Service, func(), error) {
	backend, err := kv.Open(ctx, cfg.Storage.Backend, cfg.Storage.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s storage: %w", cfg.Storage.Backend, err)
	}
	closeBackend := func() {
		if err := backend.Close(); err != nil {
			logger.Error("error closing storage", "error", err)
		}
	}

	store, err := db.Open(ctx, kv.NewTree(backend, cfg.Storage.Namespace, kv.WithLogger(logger)),
		db.WithLogger(logger),
	)
	if err != nil {
		closeBackend()
		return nil, nil, fmt.Errorf("open store: %w", err)
	}

	svc := service.New(store,
		service.WithIdentity(newExtractor(cfg.Identity)),
		service.WithLogger(logger),
	)
	return svc, closeBackend, nil
}

func newExtractor(id config.Identity) identity.Extractor {
	if id.Mode == config.IdentityJWT {
		return identity.NewJWT(id.JWTSecret)
	}
	return identity.DottedToken{}
}

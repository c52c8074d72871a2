package chat

import (
	"context"
	"fmt"

	"github.com/felixgeelhaar/tradeflow/internal/config"
	tferrors "github.com/felixgeelhaar/tradeflow/internal/errors"
)

// Open returns the store selected by cfg.Driver.
func Open(ctx context.Context, cfg config.ChatConfig) (Store, error) {
	switch cfg.Driver {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		return NewSQLiteStore(ctx, cfg.DSN)
	default:
		return nil, tferrors.New(tferrors.ErrCodeConfig, fmt.Sprintf("unknown chat driver %q", cfg.Driver)).
			WithSuggestion("Set chat.driver to memory or sqlite")
	}
}

package events

import (
	"go.uber.org/fx"

	"github.com/ronappleton/caseflow/internal/config"
)

func Module() fx.Option {
	return fx.Provide(NewStore, NewHandler)
}

func NewStore(cfg config.Config) (Store, error) {
	if cfg.Database.DSN == "" {
		return NewMemoryStore(), nil
	}
	return NewPGStore(cfg.Database.DSN)
}

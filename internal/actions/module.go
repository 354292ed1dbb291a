package actions

import (
	"go.uber.org/fx"

	"github.com/ronappleton/caseflow/internal/workflow"
)

func Module() fx.Option {
	return fx.Provide(
		fx.Annotate(NewRunner, fx.As(new(workflow.ActionRunner))),
	)
}

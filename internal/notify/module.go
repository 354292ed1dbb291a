package notify

import "go.uber.org/fx"

func Module() fx.Option {
	return fx.Provide(
		NewSender,
		fx.Annotate(NewHTTPDispatcher, fx.As(new(Dispatcher))),
	)
}

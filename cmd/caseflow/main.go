package main

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/ronappleton/caseflow/internal/actions"
	"github.com/ronappleton/caseflow/internal/approval"
	"github.com/ronappleton/caseflow/internal/cases"
	"github.com/ronappleton/caseflow/internal/cli"
	"github.com/ronappleton/caseflow/internal/config"
	"github.com/ronappleton/caseflow/internal/discoveryannounce"
	"github.com/ronappleton/caseflow/internal/events"
	"github.com/ronappleton/caseflow/internal/httpserver"
	"github.com/ronappleton/caseflow/internal/logging"
	"github.com/ronappleton/caseflow/internal/notify"
	"github.com/ronappleton/caseflow/internal/otel"
	"github.com/ronappleton/caseflow/internal/scheduler"
	"github.com/ronappleton/caseflow/internal/sequence"
	"github.com/ronappleton/caseflow/internal/workflow"
)

func main() {
	rootCmd := cli.NewRootCommand()

	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		startServer(configPath)
		return nil
	}

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func startServer(configPath string) {
	app := fx.New(
		config.Module(configPath),
		logging.Module(),
		otel.Module("caseflow"),
		cases.Module(),
		notify.Module(),
		workflow.Module(),
		approval.Module(),
		sequence.Module(),
		actions.Module(),
		events.Module(),
		scheduler.Module(),
		httpserver.Module(),
		fx.Invoke(func(params discoveryannounce.Params, cfg config.Config) {
			discoveryannounce.Register(params, "caseflow", cfg.Server.Host, cfg.Server.Port)
		}),
	)

	app.Run()
}

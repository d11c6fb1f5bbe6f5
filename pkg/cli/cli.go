package cli

import (
	"context"

	"github.com/nik45114/kbcore/pkg/cli/config"
	"github.com/nik45114/kbcore/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

func Run(ctx context.Context, args []string, version string) error {
	if err := newApp(version).Run(ctx, args); err != nil {
		logging.Default().Error("failed to run app", "error", err)
		return err
	}

	return nil
}

func newApp(version string) *cli.Command {
	var loggerCfg config.Logger
	var closer func()

	return &cli.Command{
		Name:    "kbcore",
		Usage:   "Semantic knowledge retrieval and moderation core",
		Version: version,
		Flags:   loggerCfg.Flags(),
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			f, err := loggerCfg.Configure()
			if err != nil {
				return ctx, err
			}
			closer = f

			logging.Default().Info("Starting kbcore", "logger", loggerCfg)
			return ctx, nil
		},
		After: func(ctx context.Context, c *cli.Command) error {
			if closer != nil {
				closer()
			}
			return nil
		},
		Commands: []*cli.Command{
			cmdServe(),
			cmdAsk(),
			cmdLearn(),
			cmdImport(),
			cmdDrafts(),
			cmdReconcile(),
			cmdDedup(),
			cmdMigrate(),
		},
	}
}

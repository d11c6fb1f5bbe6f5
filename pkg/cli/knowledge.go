package cli

import (
	"context"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/nik45114/kbcore/pkg/domain/model"
	"github.com/nik45114/kbcore/pkg/usecase"
	"github.com/nik45114/kbcore/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

func cmdImport() *cli.Command {
	var asDrafts bool
	var proposer string
	var comps components

	flags := []cli.Flag{
		&cli.BoolFlag{
			Name:        "drafts",
			Usage:       "Enqueue items as drafts for moderation instead of adding them",
			Destination: &asDrafts,
		},
		&cli.StringFlag{
			Name:        "proposer",
			Usage:       "Proposer recorded on imported drafts",
			Destination: &proposer,
		},
	}
	flags = append(flags, comps.Flags()...)

	return &cli.Command{
		Name:      "import",
		Usage:     "Bulk import question/answer pairs from a JSONL or TOML file",
		ArgsUsage: "FILE",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			if c.Args().Len() != 1 {
				return goerr.Wrap(model.ErrInvalidInput, "exactly one FILE argument is required")
			}

			items, err := usecase.LoadImportFile(ctx, c.Args().First())
			if err != nil {
				return err
			}

			rt, err := comps.build(ctx)
			if err != nil {
				return err
			}
			defer rt.close(context.Background())

			startTime := time.Now()
			report, importErr := rt.uc.Import.Import(ctx, items, usecase.ImportOptions{
				AsDrafts: asDrafts,
				Proposer: proposer,
			})
			if report != nil {
				logging.Default().Info("Import finished",
					"imported", report.Imported,
					"skipped", report.Skipped,
					"failed", report.Failed,
					"duration", time.Since(startTime),
				)
				if err := printJSON(writer(c), map[string]any{
					"imported": report.Imported,
					"skipped":  report.Skipped,
					"failed":   report.Failed,
				}); err != nil {
					return err
				}
			}
			return importErr
		},
	}
}

func cmdReconcile() *cli.Command {
	var rebuild bool
	var comps components

	flags := []cli.Flag{
		&cli.BoolFlag{
			Name:        "rebuild",
			Usage:       "Drop the index and re-embed every current record",
			Destination: &rebuild,
		},
	}
	flags = append(flags, comps.Flags()...)

	return &cli.Command{
		Name:  "reconcile",
		Usage: "Repair drift between the knowledge store and the vector index",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			rt, err := comps.open(ctx)
			if err != nil {
				return err
			}
			defer rt.close(context.Background())

			if err := rt.wire(); err != nil {
				return err
			}
			if err := rt.loadIndex(ctx); err != nil {
				return err
			}

			var report *usecase.ReconcileReport
			if rebuild {
				report, err = rt.uc.Knowledge.Rebuild(ctx)
			} else {
				report, err = rt.uc.Knowledge.Reconcile(ctx)
			}
			if err != nil {
				return err
			}

			return printJSON(writer(c), map[string]any{
				"checked":     report.Checked,
				"added":       report.Added,
				"removed":     report.Removed,
				"duration_ms": report.Duration.Milliseconds(),
			})
		},
	}
}

func cmdDedup() *cli.Command {
	var comps components

	return &cli.Command{
		Name:  "dedup",
		Usage: "Merge near-duplicate knowledge records, keeping the newest of each group",
		Flags: comps.Flags(),
		Action: func(ctx context.Context, c *cli.Command) error {
			rt, err := comps.build(ctx)
			if err != nil {
				return err
			}
			defer rt.close(context.Background())

			report, err := rt.uc.Knowledge.Dedup(ctx)
			if err != nil {
				return err
			}
			return printJSON(writer(c), map[string]any{
				"groups":  report.Groups,
				"kept":    report.Kept,
				"removed": report.Removed,
			})
		},
	}
}

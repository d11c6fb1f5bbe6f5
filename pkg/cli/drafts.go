package cli

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/nik45114/kbcore/pkg/domain/model"
	"github.com/nik45114/kbcore/pkg/domain/types"
	"github.com/urfave/cli/v3"
)

func cmdDrafts() *cli.Command {
	return &cli.Command{
		Name:  "drafts",
		Usage: "Moderate the draft queue",
		Commands: []*cli.Command{
			cmdDraftsList(),
			cmdDraftsApprove(),
			cmdDraftsReject(),
		},
	}
}

func cmdDraftsList() *cli.Command {
	var status string
	var limit, offset int64
	var comps components

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "status",
			Usage:       "Filter by status (pending, approved, rejected), empty lists all",
			Value:       types.DraftStatusPending.String(),
			Destination: &status,
		},
		&cli.Int64Flag{
			Name:        "limit",
			Value:       20,
			Destination: &limit,
		},
		&cli.Int64Flag{
			Name:        "offset",
			Destination: &offset,
		},
	}
	flags = append(flags, comps.Flags()...)

	return &cli.Command{
		Name:  "list",
		Usage: "List drafts, most confident first",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			rt, err := comps.build(ctx)
			if err != nil {
				return err
			}
			defer rt.close(context.Background())

			drafts, total, err := rt.uc.Draft.List(ctx, types.DraftStatus(status), int(limit), int(offset))
			if err != nil {
				return err
			}

			items := make([]map[string]any, len(drafts))
			for i, d := range drafts {
				items[i] = draftView(d)
			}
			return printJSON(writer(c), map[string]any{"drafts": items, "total": total})
		},
	}
}

func cmdDraftsApprove() *cli.Command {
	var reviewer string
	var question, answer, category string
	var tags []string
	var comps components

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "reviewer",
			Usage:       "Moderator identity",
			Required:    true,
			Sources:     cli.EnvVars("KBCORE_REVIEWER"),
			Destination: &reviewer,
		},
		&cli.StringFlag{
			Name:        "question",
			Usage:       "Replace the question before approval",
			Destination: &question,
		},
		&cli.StringFlag{
			Name:        "answer",
			Usage:       "Replace the answer before approval",
			Destination: &answer,
		},
		&cli.StringFlag{
			Name:        "category",
			Usage:       "Replace the category before approval",
			Destination: &category,
		},
		&cli.StringSliceFlag{
			Name:        "tag",
			Usage:       "Replace the tags before approval (repeatable)",
			Destination: &tags,
		},
	}
	flags = append(flags, comps.Flags()...)

	return &cli.Command{
		Name:      "approve",
		Usage:     "Approve a pending draft into the knowledge base",
		ArgsUsage: "DRAFT_ID",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			if c.Args().Len() != 1 {
				return goerr.Wrap(model.ErrInvalidInput, "exactly one DRAFT_ID argument is required")
			}

			edits := &model.DraftEdits{}
			if c.IsSet("question") {
				edits.Question = &question
			}
			if c.IsSet("answer") {
				edits.Answer = &answer
			}
			if c.IsSet("category") {
				edits.Category = &category
			}
			if c.IsSet("tag") {
				edits.Tags = tags
			}

			rt, err := comps.build(ctx)
			if err != nil {
				return err
			}
			defer rt.close(context.Background())

			id, err := rt.uc.Draft.Approve(ctx, model.DraftID(c.Args().First()), reviewer, edits)
			if err != nil {
				return err
			}
			return printJSON(writer(c), map[string]any{"knowledge_id": id})
		},
	}
}

func cmdDraftsReject() *cli.Command {
	var reviewer string
	var comps components

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "reviewer",
			Usage:       "Moderator identity",
			Required:    true,
			Sources:     cli.EnvVars("KBCORE_REVIEWER"),
			Destination: &reviewer,
		},
	}
	flags = append(flags, comps.Flags()...)

	return &cli.Command{
		Name:      "reject",
		Usage:     "Reject a pending draft",
		ArgsUsage: "DRAFT_ID",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			if c.Args().Len() != 1 {
				return goerr.Wrap(model.ErrInvalidInput, "exactly one DRAFT_ID argument is required")
			}

			rt, err := comps.build(ctx)
			if err != nil {
				return err
			}
			defer rt.close(context.Background())

			if err := rt.uc.Draft.Reject(ctx, model.DraftID(c.Args().First()), reviewer); err != nil {
				return err
			}
			return printJSON(writer(c), map[string]any{"status": types.DraftStatusRejected})
		},
	}
}

package cli

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/nik45114/kbcore/pkg/domain/model"
	"github.com/nik45114/kbcore/pkg/service/gap"
	"github.com/nik45114/kbcore/pkg/usecase"
	"github.com/urfave/cli/v3"
)

func cmdAsk() *cli.Command {
	var user string
	var comps components

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "user",
			Aliases:     []string{"u"},
			Usage:       "User recorded on coverage gaps",
			Value:       "cli",
			Sources:     cli.EnvVars("KBCORE_USER"),
			Destination: &user,
		},
	}
	flags = append(flags, comps.Flags()...)

	return &cli.Command{
		Name:      "ask",
		Usage:     "Answer a question from the knowledge base",
		ArgsUsage: "QUESTION",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			question := strings.Join(c.Args().Slice(), " ")
			if strings.TrimSpace(question) == "" {
				return goerr.Wrap(model.ErrInvalidInput, "question argument is required")
			}

			rt, err := comps.open(ctx)
			if err != nil {
				return err
			}
			defer rt.close(context.Background())

			gapQueue := gap.New(rt.repo.Gap())
			if err := gapQueue.Start(ctx); err != nil {
				return goerr.Wrap(err, "failed to start coverage gap queue")
			}
			defer gapQueue.Stop()

			if err := rt.wire(usecase.WithGapReporter(gapQueue)); err != nil {
				return err
			}
			if err := rt.loadIndex(ctx); err != nil {
				return err
			}
			if err := rt.reconcile(ctx); err != nil {
				return err
			}

			answer, err := rt.uc.Answer.Answer(ctx, question, user)
			if err != nil {
				return err
			}

			return printJSON(writer(c), map[string]any{
				"text":           answer.Text,
				"mode":           answer.Mode,
				"score":          answer.Score,
				"provenance_ids": answer.ProvenanceIDs,
				"suggestion_id":  answer.SuggestionID,
			})
		},
	}
}

func cmdLearn() *cli.Command {
	var user string
	var comps components

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "user",
			Aliases:     []string{"u"},
			Usage:       "Author of the message",
			Required:    true,
			Sources:     cli.EnvVars("KBCORE_USER"),
			Destination: &user,
		},
	}
	flags = append(flags, comps.Flags()...)

	return &cli.Command{
		Name:      "learn",
		Usage:     "Classify a chat message and enqueue a draft when it carries a fact",
		ArgsUsage: "TEXT",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			text := strings.Join(c.Args().Slice(), " ")

			rt, err := comps.build(ctx)
			if err != nil {
				return err
			}
			defer rt.close(context.Background())

			draft, err := rt.uc.Learn.Learn(ctx, text, user)
			if err != nil {
				return err
			}
			if draft == nil {
				return printJSON(writer(c), map[string]any{"draft": nil})
			}
			return printJSON(writer(c), map[string]any{"draft": draftView(draft)})
		},
	}
}

func draftView(d *model.Draft) map[string]any {
	return map[string]any{
		"id":           d.ID,
		"question":     d.Question,
		"answer":       d.Answer,
		"category":     d.Category,
		"confidence":   d.Confidence,
		"proposed_by":  d.ProposedBy,
		"status":       d.Status,
		"knowledge_id": d.KnowledgeID,
		"created_at":   d.CreatedAt,
	}
}

func writer(c *cli.Command) io.Writer {
	if root := c.Root(); root != nil && root.Writer != nil {
		return root.Writer
	}
	return os.Stdout
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return goerr.Wrap(err, "failed to write output")
	}
	return nil
}

package usecase_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/nik45114/kbcore/pkg/domain/model"
	"github.com/nik45114/kbcore/pkg/domain/model/config"
	"github.com/nik45114/kbcore/pkg/domain/types"
	"github.com/nik45114/kbcore/pkg/usecase"
)

func TestParseJSONL(t *testing.T) {
	input := `{"question":"Где клуб?","answer":"Ленина 5","tags":["address"]}

{"question":"Где душ?","answer":"Второй этаж","category":"facilities"}
`
	items, err := usecase.ParseJSONL(strings.NewReader(input))
	gt.NoError(t, err).Required()
	gt.Array(t, items).Length(2)
	gt.Value(t, items[0].Tags).Equal([]string{"address"})
	gt.Value(t, items[1].Category).Equal("facilities")

	_, err = usecase.ParseJSONL(strings.NewReader("{broken"))
	gt.Error(t, err).Is(model.ErrInvalidInput)
}

func TestParseTOML(t *testing.T) {
	input := `
[[item]]
question = "Где клуб?"
answer = "Ленина 5"

[[item]]
question = "Где душ?"
answer = "Второй этаж"
tags = ["facilities"]
`
	items, err := usecase.ParseTOML(strings.NewReader(input))
	gt.NoError(t, err).Required()
	gt.Array(t, items).Length(2)
	gt.Value(t, items[1].Tags).Equal([]string{"facilities"})
}

func TestLoadImportFile(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	path := filepath.Join(dir, "faq.jsonl")
	gt.NoError(t, os.WriteFile(path, []byte(`{"question":"q","answer":"a"}`+"\n"), 0o600)).Required()
	items, err := usecase.LoadImportFile(ctx, path)
	gt.NoError(t, err).Required()
	gt.Array(t, items).Length(1)

	other := filepath.Join(dir, "faq.csv")
	gt.NoError(t, os.WriteFile(other, []byte("q,a"), 0o600)).Required()
	_, err = usecase.LoadImportFile(ctx, other)
	gt.Error(t, err).Is(model.ErrInvalidInput)
}

func testItems(n int) []usecase.ImportItem {
	words := []string{"клуб", "душ", "парковка", "сауна", "бассейн", "кафе", "вход", "лифт", "касса", "зал", "тренер", "шкафчик"}
	items := make([]usecase.ImportItem, n)
	for i := range items {
		items[i] = usecase.ImportItem{
			Question: "Где " + words[i%len(words)] + " номер " + strings.Repeat("i", i+1),
			Answer:   "Здесь",
		}
	}
	return items
}

func TestImportUseCase_Import(t *testing.T) {
	ctx := context.Background()

	newEnv := func(t *testing.T) *testEnv {
		policy := config.DefaultPolicy()
		policy.Import.ChunkSize = 3
		policy.Import.Concurrency = 2
		return newTestEnv(t, usecase.WithPolicy(policy))
	}

	t.Run("imports every item and indexes it", func(t *testing.T) {
		env := newEnv(t)

		report, err := env.uc.Import.Import(ctx, testItems(10), usecase.ImportOptions{})
		gt.NoError(t, err).Required()
		gt.Value(t, report.Imported).Equal(10)
		gt.Value(t, report.Skipped).Equal(0)
		gt.Value(t, report.Failed).Equal(0)
		env.assertIndexMatchesStore(t)
		gt.Value(t, env.index.Len()).Equal(10)
	})

	t.Run("second run skips what is already there", func(t *testing.T) {
		env := newEnv(t)
		items := testItems(6)

		_, err := env.uc.Import.Import(ctx, items[:4], usecase.ImportOptions{})
		gt.NoError(t, err).Required()

		report, err := env.uc.Import.Import(ctx, items, usecase.ImportOptions{})
		gt.NoError(t, err).Required()
		gt.Value(t, report.Imported).Equal(2)
		gt.Value(t, report.Skipped).Equal(4)
		gt.Value(t, env.index.Len()).Equal(6)
	})

	t.Run("invalid and repeated items are counted", func(t *testing.T) {
		env := newEnv(t)
		items := []usecase.ImportItem{
			{Question: "Где клуб?", Answer: "Ленина 5"},
			{Question: "где клуб", Answer: "Ленина 5"},
			{Question: "", Answer: "x"},
		}

		report, err := env.uc.Import.Import(ctx, items, usecase.ImportOptions{})
		gt.NoError(t, err).Required()
		gt.Value(t, report.Imported).Equal(1)
		gt.Value(t, report.Skipped).Equal(1)
		gt.Value(t, report.Failed).Equal(1)
	})

	t.Run("cancelled context stops the import", func(t *testing.T) {
		env := newEnv(t)
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		report, err := env.uc.Import.Import(cctx, testItems(9), usecase.ImportOptions{})
		gt.Error(t, err).Is(context.Canceled)
		gt.Value(t, report.Imported).Equal(0)
		env.assertIndexMatchesStore(t)
	})

	t.Run("drafts mode enqueues instead of writing knowledge", func(t *testing.T) {
		env := newEnv(t)

		report, err := env.uc.Import.Import(ctx, testItems(4), usecase.ImportOptions{AsDrafts: true, Proposer: "migration"})
		gt.NoError(t, err).Required()
		gt.Value(t, report.Imported).Equal(4)
		gt.Value(t, env.index.Len()).Equal(0)

		drafts, total, err := env.uc.Draft.List(ctx, types.DraftStatusPending, 0, 0)
		gt.NoError(t, err).Required()
		gt.Value(t, total).Equal(4)
		gt.Value(t, drafts[0].ProposedBy).Equal("migration")
		gt.Value(t, drafts[0].Confidence).Equal(config.DefaultImportPolicy().DraftConfidence)
	})
}

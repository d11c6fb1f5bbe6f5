package model_test

import (
	"errors"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/nik45114/kbcore/pkg/domain/model"
)

func TestNewKnowledgeID(t *testing.T) {
	id := model.NewKnowledgeID()
	gt.Value(t, len(id)).Equal(36)
	gt.Value(t, id).NotEqual(model.NewKnowledgeID())
}

func TestNewKnowledge(t *testing.T) {
	k := model.NewKnowledge("  Где находится клуб? ", " ул. Ленина 123 ", model.KnowledgeMeta{
		Category:  "location",
		Tags:      []string{"address", " address", "", "club"},
		CreatedBy: "U1",
	})

	gt.Value(t, k.TopicID).Equal(k.ID)
	gt.Value(t, k.Question).Equal("Где находится клуб?")
	gt.Value(t, k.QuestionKey).Equal("где находится клуб")
	gt.Value(t, k.Answer).Equal("ул. Ленина 123")
	gt.Value(t, k.Version).Equal(1)
	gt.Bool(t, k.IsCurrent).True()
	gt.Value(t, k.Tags).Equal([]string{"address", "club"})
}

func TestKnowledge_NextVersion(t *testing.T) {
	k := model.NewKnowledge("Opening hours?", "10-22", model.KnowledgeMeta{
		Category: "schedule",
		Tags:     []string{"hours"},
		Source:   "admin",
	})

	t.Run("inherits empty metadata", func(t *testing.T) {
		next := k.NextVersion("9-23", model.KnowledgeMeta{CreatedBy: "U2"})
		gt.Value(t, next.TopicID).Equal(k.TopicID)
		gt.Value(t, next.ID).NotEqual(k.ID)
		gt.Value(t, next.Version).Equal(2)
		gt.Value(t, next.Question).Equal(k.Question)
		gt.Value(t, next.Answer).Equal("9-23")
		gt.Value(t, next.Category).Equal("schedule")
		gt.Value(t, next.Tags).Equal([]string{"hours"})
		gt.Value(t, next.Source).Equal("admin")
		gt.Value(t, next.CreatedBy).Equal("U2")
	})

	t.Run("overrides supplied metadata", func(t *testing.T) {
		next := k.NextVersion("9-23", model.KnowledgeMeta{Category: "hours", Tags: []string{"new"}})
		gt.Value(t, next.Category).Equal("hours")
		gt.Value(t, next.Tags).Equal([]string{"new"})
	})
}

func TestKnowledge_Copy(t *testing.T) {
	k := model.NewKnowledge("q", "a", model.KnowledgeMeta{Tags: []string{"x"}})
	c := k.Copy()
	c.Tags[0] = "y"
	gt.Value(t, k.Tags[0]).Equal("x")
}

func TestValidateQA(t *testing.T) {
	gt.NoError(t, model.ValidateQA("q", "a"))
	gt.Bool(t, errors.Is(model.ValidateQA("  ", "a"), model.ErrInvalidInput)).True()
	gt.Bool(t, errors.Is(model.ValidateQA("q", "\n"), model.ErrInvalidInput)).True()
}

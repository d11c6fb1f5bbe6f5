package memory

import (
	"github.com/nik45114/kbcore/pkg/domain/interfaces"
)

// Repository is an alias for Memory to match the pattern
type Repository = Memory

type Memory struct {
	knowledge *knowledgeRepository
	draft     *draftRepository
	gap       *gapRepository
}

var _ interfaces.Repository = &Memory{}

func New() *Memory {
	return &Memory{
		knowledge: newKnowledgeRepository(),
		draft:     newDraftRepository(),
		gap:       newGapRepository(),
	}
}

func (m *Memory) Knowledge() interfaces.KnowledgeRepository {
	return m.knowledge
}

func (m *Memory) Draft() interfaces.DraftRepository {
	return m.draft
}

func (m *Memory) Gap() interfaces.GapRepository {
	return m.gap
}

func (m *Memory) Close() error {
	return nil
}

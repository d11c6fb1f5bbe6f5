package firestore

import (
	"context"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/nik45114/kbcore/pkg/domain/interfaces"
)

// Collection names. CollectionPrefix is prepended when set.
const (
	KnowledgeCollection = "knowledges"
	DraftCollection     = "drafts"
	GapCollection       = "gaps"
)

type Firestore struct {
	client    *firestore.Client
	knowledge *knowledgeRepository
	draft     *draftRepository
	gap       *gapRepository
}

var _ interfaces.Repository = &Firestore{}

type Option func(*Firestore)

func WithCollectionPrefix(prefix string) Option {
	return func(f *Firestore) {
		f.knowledge.collectionPrefix = prefix
		f.draft.collectionPrefix = prefix
		f.gap.collectionPrefix = prefix
	}
}

func New(ctx context.Context, projectID, databaseID string, opts ...Option) (*Firestore, error) {
	client, err := firestore.NewClientWithDatabase(ctx, projectID, databaseID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create firestore client",
			goerr.V("projectID", projectID),
			goerr.V("databaseID", databaseID))
	}

	f := &Firestore{
		client:    client,
		knowledge: newKnowledgeRepository(client),
		draft:     newDraftRepository(client),
		gap:       newGapRepository(client),
	}

	for _, opt := range opts {
		opt(f)
	}

	return f, nil
}

func (f *Firestore) Knowledge() interfaces.KnowledgeRepository {
	return f.knowledge
}

func (f *Firestore) Draft() interfaces.DraftRepository {
	return f.draft
}

func (f *Firestore) Gap() interfaces.GapRepository {
	return f.gap
}

func (f *Firestore) Close() error {
	if f.client != nil {
		return f.client.Close()
	}
	return nil
}

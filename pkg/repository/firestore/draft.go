package firestore

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/nik45114/kbcore/pkg/domain/model"
	"github.com/nik45114/kbcore/pkg/domain/types"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type draftDoc struct {
	ID          string    `firestore:"ID"`
	Question    string    `firestore:"Question"`
	Answer      string    `firestore:"Answer"`
	Category    string    `firestore:"Category"`
	Tags        []string  `firestore:"Tags"`
	Source      string    `firestore:"Source"`
	Confidence  float64   `firestore:"Confidence"`
	ProposedBy  string    `firestore:"ProposedBy"`
	Status      string    `firestore:"Status"`
	Edited      bool      `firestore:"Edited"`
	ReviewedBy  string    `firestore:"ReviewedBy"`
	KnowledgeID string    `firestore:"KnowledgeID"`
	CreatedAt   time.Time `firestore:"CreatedAt"`
	ReviewedAt  time.Time `firestore:"ReviewedAt"`
}

func toDraftDoc(d *model.Draft) *draftDoc {
	return &draftDoc{
		ID:          d.ID.String(),
		Question:    d.Question,
		Answer:      d.Answer,
		Category:    d.Category,
		Tags:        d.Tags,
		Source:      d.Source,
		Confidence:  d.Confidence,
		ProposedBy:  d.ProposedBy,
		Status:      d.Status.String(),
		Edited:      d.Edited,
		ReviewedBy:  d.ReviewedBy,
		KnowledgeID: d.KnowledgeID.String(),
		CreatedAt:   d.CreatedAt,
		ReviewedAt:  d.ReviewedAt,
	}
}

func docToDraft(doc *firestore.DocumentSnapshot) (*model.Draft, error) {
	var d draftDoc
	if err := doc.DataTo(&d); err != nil {
		return nil, err
	}
	draft := &model.Draft{
		ID:          model.DraftID(d.ID),
		Question:    d.Question,
		Answer:      d.Answer,
		Category:    d.Category,
		Source:      d.Source,
		Confidence:  d.Confidence,
		ProposedBy:  d.ProposedBy,
		Status:      types.DraftStatus(d.Status),
		Edited:      d.Edited,
		ReviewedBy:  d.ReviewedBy,
		KnowledgeID: model.KnowledgeID(d.KnowledgeID),
		CreatedAt:   d.CreatedAt,
		ReviewedAt:  d.ReviewedAt,
	}
	if len(d.Tags) > 0 {
		draft.Tags = d.Tags
	}
	return draft, nil
}

type draftRepository struct {
	client           *firestore.Client
	collectionPrefix string
}

func newDraftRepository(client *firestore.Client) *draftRepository {
	return &draftRepository{
		client: client,
	}
}

func (r *draftRepository) collection() *firestore.CollectionRef {
	return r.client.Collection(r.collectionPrefix + DraftCollection)
}

func (r *draftRepository) Create(ctx context.Context, draft *model.Draft) (*model.Draft, error) {
	created := draft.Copy()
	if created.ID == "" {
		created.ID = model.NewDraftID()
	}
	if created.Status == "" {
		created.Status = types.DraftStatusPending
	}
	if created.CreatedAt.IsZero() {
		created.CreatedAt = time.Now().UTC()
	}

	if _, err := r.collection().Doc(created.ID.String()).Create(ctx, toDraftDoc(created)); err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return nil, goerr.Wrap(model.ErrInvalidState, "draft already exists", goerr.V(model.DraftIDKey, created.ID))
		}
		return nil, goerr.Wrap(err, "failed to create draft", goerr.V(model.DraftIDKey, created.ID))
	}
	return created, nil
}

func (r *draftRepository) Get(ctx context.Context, id model.DraftID) (*model.Draft, error) {
	doc, err := r.collection().Doc(id.String()).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(model.ErrNotFound, "draft not found", goerr.V(model.DraftIDKey, id))
		}
		return nil, goerr.Wrap(err, "failed to get draft", goerr.V(model.DraftIDKey, id))
	}

	d, err := docToDraft(doc)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal draft", goerr.V(model.DraftIDKey, id))
	}
	return d, nil
}

func (r *draftRepository) List(ctx context.Context, st types.DraftStatus, limit, offset int) ([]*model.Draft, int, error) {
	base := r.collection().Query
	if st != "" {
		base = base.Where("Status", "==", st.String())
	}

	total, err := r.count(ctx, base)
	if err != nil {
		return nil, 0, err
	}

	query := base.
		OrderBy("Confidence", firestore.Desc).
		OrderBy("CreatedAt", firestore.Asc)
	if offset > 0 {
		query = query.Offset(offset)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	drafts := make([]*model.Draft, 0)
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, 0, goerr.Wrap(err, "failed to iterate drafts", goerr.V(model.StatusKey, st))
		}
		d, err := docToDraft(doc)
		if err != nil {
			return nil, 0, goerr.Wrap(err, "failed to unmarshal draft", goerr.V("doc_id", doc.Ref.ID))
		}
		drafts = append(drafts, d)
	}
	return drafts, total, nil
}

func (r *draftRepository) count(ctx context.Context, query firestore.Query) (int, error) {
	iter := query.Select().Documents(ctx)
	defer iter.Stop()

	n := 0
	for {
		_, err := iter.Next()
		if err == iterator.Done {
			return n, nil
		}
		if err != nil {
			return 0, goerr.Wrap(err, "failed to count drafts")
		}
		n++
	}
}

func (r *draftRepository) Resolve(ctx context.Context, expected types.DraftStatus, resolved *model.Draft) (*model.Draft, error) {
	ref := r.collection().Doc(resolved.ID.String())
	var stored *model.Draft

	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return goerr.Wrap(model.ErrNotFound, "draft not found")
			}
			return err
		}

		current, err := docToDraft(doc)
		if err != nil {
			return goerr.Wrap(err, "failed to unmarshal draft")
		}
		if current.Status != expected {
			return goerr.Wrap(model.ErrInvalidState, "draft status changed",
				goerr.V("expected", expected), goerr.V(model.StatusKey, current.Status))
		}

		stored = resolved.Copy()
		stored.CreatedAt = current.CreatedAt
		return tx.Set(ref, toDraftDoc(stored))
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to resolve draft", goerr.V(model.DraftIDKey, resolved.ID))
	}
	return stored, nil
}

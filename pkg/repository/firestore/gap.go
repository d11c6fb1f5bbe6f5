package firestore

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/nik45114/kbcore/pkg/domain/model"
	"google.golang.org/api/iterator"
)

type gapDoc struct {
	ID        string    `firestore:"ID"`
	Question  string    `firestore:"Question"`
	TopScore  float64   `firestore:"TopScore"`
	AskedBy   string    `firestore:"AskedBy"`
	CreatedAt time.Time `firestore:"CreatedAt"`
}

type gapRepository struct {
	client           *firestore.Client
	collectionPrefix string
}

func newGapRepository(client *firestore.Client) *gapRepository {
	return &gapRepository{
		client: client,
	}
}

func (r *gapRepository) collection() *firestore.CollectionRef {
	return r.client.Collection(r.collectionPrefix + GapCollection)
}

func (r *gapRepository) Create(ctx context.Context, gap *model.CoverageGap) (*model.CoverageGap, error) {
	created := *gap
	if created.ID == "" {
		created.ID = model.NewCoverageGapID()
	}
	if created.CreatedAt.IsZero() {
		created.CreatedAt = time.Now().UTC()
	}

	doc := &gapDoc{
		ID:        string(created.ID),
		Question:  created.Question,
		TopScore:  created.TopScore,
		AskedBy:   created.AskedBy,
		CreatedAt: created.CreatedAt,
	}
	if _, err := r.collection().Doc(doc.ID).Set(ctx, doc); err != nil {
		return nil, goerr.Wrap(err, "failed to create coverage gap", goerr.V("id", doc.ID))
	}
	return &created, nil
}

func (r *gapRepository) List(ctx context.Context, limit int) ([]*model.CoverageGap, error) {
	query := r.collection().OrderBy("CreatedAt", firestore.Desc)
	if limit > 0 {
		query = query.Limit(limit)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	gaps := make([]*model.CoverageGap, 0)
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate coverage gaps")
		}

		var d gapDoc
		if err := doc.DataTo(&d); err != nil {
			return nil, goerr.Wrap(err, "failed to unmarshal coverage gap", goerr.V("doc_id", doc.Ref.ID))
		}
		gaps = append(gaps, &model.CoverageGap{
			ID:        model.CoverageGapID(d.ID),
			Question:  d.Question,
			TopScore:  d.TopScore,
			AskedBy:   d.AskedBy,
			CreatedAt: d.CreatedAt,
		})
	}
	return gaps, nil
}

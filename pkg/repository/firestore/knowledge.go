package firestore

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/nik45114/kbcore/pkg/domain/model"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// knowledgeDoc is the Firestore document representation of model.Knowledge
type knowledgeDoc struct {
	ID          string    `firestore:"ID"`
	TopicID     string    `firestore:"TopicID"`
	Question    string    `firestore:"Question"`
	QuestionKey string    `firestore:"QuestionKey"`
	Answer      string    `firestore:"Answer"`
	Category    string    `firestore:"Category"`
	Tags        []string  `firestore:"Tags"`
	Source      string    `firestore:"Source"`
	Version     int       `firestore:"Version"`
	IsCurrent   bool      `firestore:"IsCurrent"`
	CreatedBy   string    `firestore:"CreatedBy"`
	CreatedAt   time.Time `firestore:"CreatedAt"`
}

func toKnowledgeDoc(k *model.Knowledge) *knowledgeDoc {
	return &knowledgeDoc{
		ID:          k.ID.String(),
		TopicID:     k.TopicID.String(),
		Question:    k.Question,
		QuestionKey: k.QuestionKey,
		Answer:      k.Answer,
		Category:    k.Category,
		Tags:        k.Tags,
		Source:      k.Source,
		Version:     k.Version,
		IsCurrent:   k.IsCurrent,
		CreatedBy:   k.CreatedBy,
		CreatedAt:   k.CreatedAt,
	}
}

func docToKnowledge(doc *firestore.DocumentSnapshot) (*model.Knowledge, error) {
	var d knowledgeDoc
	if err := doc.DataTo(&d); err != nil {
		return nil, err
	}
	k := &model.Knowledge{
		ID:          model.KnowledgeID(d.ID),
		TopicID:     model.KnowledgeID(d.TopicID),
		Question:    d.Question,
		QuestionKey: d.QuestionKey,
		Answer:      d.Answer,
		Category:    d.Category,
		Source:      d.Source,
		Version:     d.Version,
		IsCurrent:   d.IsCurrent,
		CreatedBy:   d.CreatedBy,
		CreatedAt:   d.CreatedAt,
	}
	if len(d.Tags) > 0 {
		k.Tags = d.Tags
	}
	return k, nil
}

type knowledgeRepository struct {
	client           *firestore.Client
	collectionPrefix string
}

func newKnowledgeRepository(client *firestore.Client) *knowledgeRepository {
	return &knowledgeRepository{
		client: client,
	}
}

func (r *knowledgeRepository) collection() *firestore.CollectionRef {
	return r.client.Collection(r.collectionPrefix + KnowledgeCollection)
}

func (r *knowledgeRepository) Create(ctx context.Context, knowledge *model.Knowledge) (*model.Knowledge, error) {
	created := knowledge.Copy()
	if created.ID == "" {
		created.ID = model.NewKnowledgeID()
	}
	if created.TopicID == "" {
		created.TopicID = created.ID
	}
	if created.Version == 0 {
		created.Version = 1
	}
	if created.CreatedAt.IsZero() {
		created.CreatedAt = time.Now().UTC()
	}

	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if created.IsCurrent {
			docs, err := tx.Documents(r.collection().
				Where("TopicID", "==", created.TopicID.String()).
				Where("IsCurrent", "==", true).
				Limit(1)).GetAll()
			if err != nil {
				return goerr.Wrap(err, "failed to check current record")
			}
			if len(docs) > 0 {
				return goerr.Wrap(model.ErrInvalidState, "topic already has a current record")
			}
		}
		return tx.Create(r.collection().Doc(created.ID.String()), toKnowledgeDoc(created))
	})
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return nil, goerr.Wrap(model.ErrInvalidState, "knowledge already exists", goerr.V(model.KnowledgeIDKey, created.ID))
		}
		return nil, goerr.Wrap(err, "failed to create knowledge",
			goerr.V(model.KnowledgeIDKey, created.ID), goerr.V(model.TopicIDKey, created.TopicID))
	}

	return created, nil
}

func (r *knowledgeRepository) Get(ctx context.Context, id model.KnowledgeID) (*model.Knowledge, error) {
	doc, err := r.collection().Doc(id.String()).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(model.ErrNotFound, "knowledge not found", goerr.V(model.KnowledgeIDKey, id))
		}
		return nil, goerr.Wrap(err, "failed to get knowledge", goerr.V(model.KnowledgeIDKey, id))
	}

	k, err := docToKnowledge(doc)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal knowledge", goerr.V(model.KnowledgeIDKey, id))
	}
	return k, nil
}

func (r *knowledgeRepository) Supersede(ctx context.Context, topicID model.KnowledgeID, next *model.Knowledge) (*model.Knowledge, *model.Knowledge, error) {
	var prev, created *model.Knowledge

	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		docs, err := tx.Documents(r.collection().Where("TopicID", "==", topicID.String())).GetAll()
		if err != nil {
			return goerr.Wrap(err, "failed to read topic")
		}
		if len(docs) == 0 {
			return goerr.Wrap(model.ErrNotFound, "topic not found")
		}

		var currentDoc *firestore.DocumentSnapshot
		for _, doc := range docs {
			k, err := docToKnowledge(doc)
			if err != nil {
				return goerr.Wrap(err, "failed to unmarshal knowledge")
			}
			if k.IsCurrent {
				prev = k
				currentDoc = doc
				break
			}
		}
		if prev == nil {
			return goerr.Wrap(model.ErrInvalidState, "topic has no current record")
		}

		created = next.Copy()
		if created.ID == "" {
			created.ID = model.NewKnowledgeID()
		}
		created.TopicID = topicID
		created.Version = prev.Version + 1
		created.IsCurrent = true
		created.CreatedAt = time.Now().UTC()
		if !created.CreatedAt.After(prev.CreatedAt) {
			created.CreatedAt = prev.CreatedAt.Add(time.Microsecond)
		}

		if err := tx.Update(currentDoc.Ref, []firestore.Update{
			{Path: "IsCurrent", Value: false},
		}); err != nil {
			return err
		}
		prev.IsCurrent = false

		return tx.Create(r.collection().Doc(created.ID.String()), toKnowledgeDoc(created))
	})
	if err != nil {
		return nil, nil, goerr.Wrap(err, "failed to supersede knowledge", goerr.V(model.TopicIDKey, topicID))
	}

	return prev, created, nil
}

func (r *knowledgeRepository) list(ctx context.Context, query firestore.Query) ([]*model.Knowledge, error) {
	iter := query.Documents(ctx)
	defer iter.Stop()

	knowledges := make([]*model.Knowledge, 0)
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate knowledges")
		}

		k, err := docToKnowledge(doc)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to unmarshal knowledge", goerr.V("doc_id", doc.Ref.ID))
		}
		knowledges = append(knowledges, k)
	}
	return knowledges, nil
}

func (r *knowledgeRepository) ListByTopic(ctx context.Context, topicID model.KnowledgeID) ([]*model.Knowledge, error) {
	knowledges, err := r.list(ctx, r.collection().
		Where("TopicID", "==", topicID.String()).
		OrderBy("Version", firestore.Asc))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list topic", goerr.V(model.TopicIDKey, topicID))
	}
	return knowledges, nil
}

func (r *knowledgeRepository) ListByQuestionKey(ctx context.Context, questionKey string) ([]*model.Knowledge, error) {
	knowledges, err := r.list(ctx, r.collection().
		Where("QuestionKey", "==", questionKey).
		OrderBy("CreatedAt", firestore.Asc).
		OrderBy("Version", firestore.Asc))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list by question key", goerr.V("question_key", questionKey))
	}
	return knowledges, nil
}

func (r *knowledgeRepository) ListCurrent(ctx context.Context) ([]*model.Knowledge, error) {
	knowledges, err := r.list(ctx, r.collection().
		Where("IsCurrent", "==", true).
		OrderBy("CreatedAt", firestore.Asc))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list current knowledges")
	}
	return knowledges, nil
}

func (r *knowledgeRepository) DeleteTopic(ctx context.Context, topicID model.KnowledgeID) error {
	iter := r.collection().Where("TopicID", "==", topicID.String()).Documents(ctx)
	defer iter.Stop()

	bulkWriter := r.client.BulkWriter(ctx)
	count := 0
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			bulkWriter.End()
			return goerr.Wrap(err, "failed to iterate topic for deletion", goerr.V(model.TopicIDKey, topicID))
		}
		if _, err := bulkWriter.Delete(doc.Ref); err != nil {
			bulkWriter.End()
			return goerr.Wrap(err, "failed to delete knowledge", goerr.V(model.TopicIDKey, topicID))
		}
		count++
	}
	bulkWriter.End()

	if count == 0 {
		return goerr.Wrap(model.ErrNotFound, "topic not found", goerr.V(model.TopicIDKey, topicID))
	}
	return nil
}

package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"portalpilot-go/domain/draft"
	"portalpilot-go/domain/step"
)

// draftDocument is the MongoDB document structure for drafts.
type draftDocument struct {
	OperatorID string      `bson:"operator_id"`
	TargetID   string      `bson:"target_id"`
	Steps      []step.Step `bson:"steps"`
	UpdatedAt  time.Time   `bson:"updated_at"`
}

// MongoDraftStore implements draft.Store using MongoDB.
type MongoDraftStore struct {
	collection *mongo.Collection
	logger     *slog.Logger
}

// NewMongoDraftStore creates a new MongoDB-based draft store.
func NewMongoDraftStore(db *MongoDB, logger *slog.Logger) *MongoDraftStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &MongoDraftStore{
		collection: db.Collection(CollectionDrafts),
		logger:     logger,
	}
}

func draftFilter(key draft.Key) bson.M {
	return bson.M{"operator_id": key.OperatorID, "target_id": key.TargetID}
}

// Save replaces the draft for key.
func (s *MongoDraftStore) Save(ctx context.Context, key draft.Key, steps []step.Step) error {
	doc := &draftDocument{
		OperatorID: key.OperatorID,
		TargetID:   key.TargetID,
		Steps:      step.Clone(steps),
		UpdatedAt:  time.Now().UTC(),
	}
	if doc.Steps == nil {
		doc.Steps = []step.Step{}
	}

	if _, err := s.collection.ReplaceOne(ctx, draftFilter(key), doc, options.Replace().SetUpsert(true)); err != nil {
		return fmt.Errorf("failed to save draft: %w", err)
	}
	s.logger.Debug("Draft saved", "draft", key.String(), "steps", len(steps))
	return nil
}

// Load returns the draft for key, or nil.
func (s *MongoDraftStore) Load(ctx context.Context, key draft.Key) (*draft.Draft, error) {
	var doc draftDocument
	if err := s.collection.FindOne(ctx, draftFilter(key)).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load draft: %w", err)
	}
	return documentToDraft(&doc), nil
}

// Delete removes the draft for key.
func (s *MongoDraftStore) Delete(ctx context.Context, key draft.Key) error {
	if _, err := s.collection.DeleteOne(ctx, draftFilter(key)); err != nil {
		return fmt.Errorf("failed to delete draft: %w", err)
	}
	s.logger.Debug("Draft deleted", "draft", key.String())
	return nil
}

func documentToDraft(doc *draftDocument) *draft.Draft {
	return &draft.Draft{
		Key:       draft.Key{OperatorID: doc.OperatorID, TargetID: doc.TargetID},
		Steps:     step.Clone(doc.Steps),
		UpdatedAt: doc.UpdatedAt,
	}
}

var _ draft.Store = (*MongoDraftStore)(nil)

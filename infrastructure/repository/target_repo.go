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

	"portalpilot-go/domain/script"
	"portalpilot-go/domain/step"
	"portalpilot-go/domain/target"
)

// targetDocument is the MongoDB document structure for targets.
type targetDocument struct {
	ID                 string   `bson:"_id"`
	DisplayName        string   `bson:"display_name"`
	InitialURL         string   `bson:"initial_url"`
	CredentialBindings []string `bson:"credential_bindings,omitempty"`
}

// scriptDocument is the MongoDB document structure for automation scripts.
type scriptDocument struct {
	TargetID string      `bson:"target_id"`
	Kind     string      `bson:"kind"`
	Steps    []step.Step `bson:"steps"`
	SavedBy  string      `bson:"saved_by,omitempty"`
	SavedAt  time.Time   `bson:"saved_at"`
}

// MongoTargetRepository implements target.Repository using MongoDB.
type MongoTargetRepository struct {
	targets *mongo.Collection
	scripts *mongo.Collection
	logger  *slog.Logger
}

// NewMongoTargetRepository creates a new MongoDB-based target repository.
func NewMongoTargetRepository(db *MongoDB, logger *slog.Logger) *MongoTargetRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &MongoTargetRepository{
		targets: db.Collection(CollectionTargets),
		scripts: db.Collection(CollectionScripts),
		logger:  logger,
	}
}

// FindByID retrieves a target by its identifier.
func (r *MongoTargetRepository) FindByID(ctx context.Context, id string) (*target.Target, error) {
	var doc targetDocument
	if err := r.targets.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find target: %w", err)
	}
	return documentToTarget(&doc), nil
}

// FindAll retrieves all targets.
func (r *MongoTargetRepository) FindAll(ctx context.Context) ([]*target.Target, error) {
	cursor, err := r.targets.Find(ctx, bson.D{})
	if err != nil {
		return nil, fmt.Errorf("failed to find targets: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []targetDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode targets: %w", err)
	}

	targets := make([]*target.Target, len(docs))
	for i := range docs {
		targets[i] = documentToTarget(&docs[i])
	}
	return targets, nil
}

// Upsert creates or replaces a target.
func (r *MongoTargetRepository) Upsert(ctx context.Context, t *target.Target) error {
	doc := targetToDocument(t)
	_, err := r.targets.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to upsert target: %w", err)
	}
	r.logger.Info("Target saved", "target_id", t.ID)
	return nil
}

// SaveScript replaces the script of kind for targetID.
func (r *MongoTargetRepository) SaveScript(ctx context.Context, targetID string, kind script.Kind, steps []step.Step, savedBy string) error {
	doc := scriptToDocument(script.New(targetID, kind, steps, savedBy))
	filter := bson.M{"target_id": targetID, "kind": string(kind)}

	if _, err := r.scripts.ReplaceOne(ctx, filter, doc, options.Replace().SetUpsert(true)); err != nil {
		return fmt.Errorf("failed to save script: %w", err)
	}
	r.logger.Info("Script saved", "target_id", targetID, "kind", kind, "steps", len(steps))
	return nil
}

// FindScript retrieves a saved script.
func (r *MongoTargetRepository) FindScript(ctx context.Context, targetID string, kind script.Kind) (*script.Script, error) {
	var doc scriptDocument
	filter := bson.M{"target_id": targetID, "kind": string(kind)}
	if err := r.scripts.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find script: %w", err)
	}
	return documentToScript(&doc), nil
}

// Conversion functions

func documentToTarget(doc *targetDocument) *target.Target {
	t := &target.Target{
		ID:          doc.ID,
		DisplayName: doc.DisplayName,
		InitialURL:  doc.InitialURL,
	}
	if len(doc.CredentialBindings) > 0 {
		t.CredentialBindings = append([]string(nil), doc.CredentialBindings...)
	}
	return t
}

func targetToDocument(t *target.Target) *targetDocument {
	return &targetDocument{
		ID:                 t.ID,
		DisplayName:        t.DisplayName,
		InitialURL:         t.InitialURL,
		CredentialBindings: t.CredentialBindings,
	}
}

func documentToScript(doc *scriptDocument) *script.Script {
	return &script.Script{
		TargetID: doc.TargetID,
		Kind:     script.Kind(doc.Kind),
		Steps:    step.Clone(doc.Steps),
		SavedBy:  doc.SavedBy,
		SavedAt:  doc.SavedAt,
	}
}

func scriptToDocument(s *script.Script) *scriptDocument {
	return &scriptDocument{
		TargetID: s.TargetID,
		Kind:     string(s.Kind),
		Steps:    s.Steps,
		SavedBy:  s.SavedBy,
		SavedAt:  s.SavedAt,
	}
}

var _ target.Repository = (*MongoTargetRepository)(nil)

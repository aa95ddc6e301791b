package gcp

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"

	"github.com/Lllllllleong/ocrflow/internal/models"
)

// NewFirestoreClient creates and returns a new Firestore client for the given project ID.
func NewFirestoreClient(ctx context.Context, projectID string) (*firestore.Client, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID must be provided to create a firestore client")
	}

	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	return client, nil
}

// StatusStore tracks document records in a Firestore collection.
type StatusStore struct {
	client     *firestore.Client
	collection string
}

func NewStatusStore(client *firestore.Client, collection string) *StatusStore {
	return &StatusStore{client: client, collection: collection}
}

// FindByHash returns the record already stored for fileHash, with its ID set.
func (s *StatusStore) FindByHash(ctx context.Context, fileHash string) (*models.DocumentRecord, bool, error) {
	docs, err := s.client.Collection(s.collection).Where("fileHash", "==", fileHash).Limit(1).Documents(ctx).GetAll()
	if err != nil {
		return nil, false, fmt.Errorf("failed to query for duplicates: %w", err)
	}
	if len(docs) == 0 {
		return nil, false, nil
	}
	var rec models.DocumentRecord
	if err := docs[0].DataTo(&rec); err != nil {
		return nil, false, fmt.Errorf("failed to decode document record %s: %w", docs[0].Ref.ID, err)
	}
	rec.ID = docs[0].Ref.ID
	return &rec, true, nil
}

// Create adds rec and returns its generated document ID.
func (s *StatusStore) Create(ctx context.Context, rec *models.DocumentRecord) (string, error) {
	now := time.Now()
	rec.CreatedAt, rec.UpdatedAt = now, now
	docRef, _, err := s.client.Collection(s.collection).Add(ctx, rec)
	if err != nil {
		return "", fmt.Errorf("failed to create document record: %w", err)
	}
	return docRef.ID, nil
}

// Update sets the given fields on the record and stamps updatedAt.
func (s *StatusStore) Update(ctx context.Context, id string, fields map[string]any) error {
	updates := make([]firestore.Update, 0, len(fields)+1)
	for path, value := range fields {
		updates = append(updates, firestore.Update{Path: path, Value: value})
	}
	updates = append(updates, firestore.Update{Path: "updatedAt", Value: firestore.ServerTimestamp})
	if _, err := s.client.Collection(s.collection).Doc(id).Update(ctx, updates); err != nil {
		return fmt.Errorf("failed to update document record %s: %w", id, err)
	}
	return nil
}

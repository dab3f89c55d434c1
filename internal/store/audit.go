// Package store persists an audit trail of authentication operation
// outcomes. Only outcomes are recorded; credentials and tokens never
// reach this package.
package store

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
)

// AuditRecord is one completed (or failed) auth operation.
type AuditRecord struct {
	ID         string        `firestore:"-"`
	RequestID  string        `firestore:"requestId"`
	Action     string        `firestore:"action"`
	Status     string        `firestore:"status"`
	ErrorCode  string        `firestore:"errorCode,omitempty"`
	UID        string        `firestore:"uid,omitempty"`
	Latency    time.Duration `firestore:"latencyNs"`
	ReceivedAt time.Time     `firestore:"receivedAt"`
	CreatedAt  time.Time     `firestore:"createdAt"`
}

// AuditRepository stores and lists audit records.
type AuditRepository interface {
	// Create stores a record and returns its document ID.
	Create(ctx context.Context, record AuditRecord) (string, error)

	// List returns the most recent records, newest first.
	List(ctx context.Context, limit int) ([]AuditRecord, error)
}

// FirestoreAuditRepository implements AuditRepository on Firestore.
type FirestoreAuditRepository struct {
	client     *firestore.Client
	collection string
}

var _ AuditRepository = (*FirestoreAuditRepository)(nil)

// NewFirestoreAuditRepository creates a repository writing to the
// auth_audit collection.
func NewFirestoreAuditRepository(client *firestore.Client) *FirestoreAuditRepository {
	return &FirestoreAuditRepository{
		client:     client,
		collection: "auth_audit",
	}
}

// Create stores a new audit record.
func (r *FirestoreAuditRepository) Create(ctx context.Context, record AuditRecord) (string, error) {
	if r.client == nil {
		return "", fmt.Errorf("firestore client is nil")
	}

	record = normalizeRecord(record)

	docRef, _, err := r.client.Collection(r.collection).Add(ctx, record)
	if err != nil {
		return "", fmt.Errorf("failed to create audit record: %w", err)
	}
	return docRef.ID, nil
}

// List retrieves up to limit records ordered by receivedAt descending.
func (r *FirestoreAuditRepository) List(ctx context.Context, limit int) ([]AuditRecord, error) {
	if r.client == nil {
		return nil, fmt.Errorf("firestore client is nil")
	}
	if limit <= 0 {
		limit = 50
	}

	iter := r.client.Collection(r.collection).
		OrderBy("receivedAt", firestore.Desc).
		Limit(limit).
		Documents(ctx)
	defer iter.Stop()

	var records []AuditRecord
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list audit records: %w", err)
		}
		var record AuditRecord
		if err := doc.DataTo(&record); err != nil {
			return nil, fmt.Errorf("failed to decode audit record %s: %w", doc.Ref.ID, err)
		}
		record.ID = doc.Ref.ID
		records = append(records, record)
	}
	return records, nil
}

// normalizeRecord fills server-side timestamps left unset by callers.
func normalizeRecord(record AuditRecord) AuditRecord {
	if record.ReceivedAt.IsZero() {
		record.ReceivedAt = time.Now()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}
	return record
}

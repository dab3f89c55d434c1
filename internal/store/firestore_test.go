package store

import (
	"context"
	"testing"
)

func TestNewFirestoreClient_EmptyProjectID(t *testing.T) {
	ctx := context.Background()

	_, err := NewFirestoreClient(ctx, FirestoreConfig{})
	if err == nil {
		t.Fatal("NewFirestoreClient() should return error for empty projectID")
	}

	expectedMsg := "projectID is required"
	if err.Error() != expectedMsg {
		t.Errorf("NewFirestoreClient() error = %q, want %q", err.Error(), expectedMsg)
	}
}

func TestFirestoreClient_ProjectID(t *testing.T) {
	fc := &FirestoreClient{
		client:    nil,
		projectID: "test-project-123",
		database:  "test-database",
	}

	if fc.ProjectID() != "test-project-123" {
		t.Errorf("ProjectID() = %q, want %q", fc.ProjectID(), "test-project-123")
	}
}

func TestFirestoreClient_Database(t *testing.T) {
	fc := &FirestoreClient{
		client:    nil,
		projectID: "test-project",
		database:  "custom-db",
	}

	if fc.Database() != "custom-db" {
		t.Errorf("Database() = %q, want %q", fc.Database(), "custom-db")
	}
}

func TestFirestoreClient_Close_NilClient(t *testing.T) {
	fc := &FirestoreClient{
		client:    nil,
		projectID: "test-project",
		database:  "(default)",
	}

	if err := fc.Close(); err != nil {
		t.Errorf("Close() error = %v, want nil for nil client", err)
	}
}

func TestFirestoreClient_Client_NilReturnsNil(t *testing.T) {
	fc := &FirestoreClient{
		client:    nil,
		projectID: "test-project",
		database:  "(default)",
	}

	if fc.Client() != nil {
		t.Error("Client() should return nil when underlying client is nil")
	}
}

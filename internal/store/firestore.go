package store

import (
	"context"
	"fmt"
	"log"
	"os"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/option"
)

// FirestoreClient wraps the Firestore client used for audit persistence.
type FirestoreClient struct {
	client    *firestore.Client
	projectID string
	database  string
}

// FirestoreConfig holds configuration for the Firestore client.
type FirestoreConfig struct {
	ProjectID   string // GCP project ID (required)
	Database    string // database name (optional, defaults to "(default)")
	Credentials string // path to service account JSON file (optional)
}

// NewFirestoreClient creates a new Firestore client.
// If FIRESTORE_EMULATOR_HOST is set, the client connects to the emulator
// and the credentials file is ignored.
func NewFirestoreClient(ctx context.Context, cfg FirestoreConfig) (*FirestoreClient, error) {
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("projectID is required")
	}

	emulatorHost := os.Getenv("FIRESTORE_EMULATOR_HOST")
	if emulatorHost != "" {
		log.Printf("Using Firestore emulator at %s", emulatorHost)
	}

	var opts []option.ClientOption
	if cfg.Credentials != "" && emulatorHost == "" {
		opts = append(opts, option.WithCredentialsFile(cfg.Credentials))
	}

	database := cfg.Database
	if database == "" {
		database = "(default)"
	}

	client, err := firestore.NewClientWithDatabase(ctx, cfg.ProjectID, database, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}

	return &FirestoreClient{
		client:    client,
		projectID: cfg.ProjectID,
		database:  database,
	}, nil
}

// Close releases resources held by the Firestore client.
func (f *FirestoreClient) Close() error {
	if f.client == nil {
		return nil
	}
	return f.client.Close()
}

// Client returns the underlying Firestore client.
func (f *FirestoreClient) Client() *firestore.Client {
	return f.client
}

// ProjectID returns the GCP project this client writes to.
func (f *FirestoreClient) ProjectID() string {
	return f.projectID
}

// Database returns the Firestore database name.
func (f *FirestoreClient) Database() string {
	return f.database
}

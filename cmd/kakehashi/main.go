package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/otiai10/kakehashi/internal/auth"
	"github.com/otiai10/kakehashi/internal/bridge"
	"github.com/otiai10/kakehashi/internal/bus"
	"github.com/otiai10/kakehashi/internal/config"
	"github.com/otiai10/kakehashi/internal/executor"
	"github.com/otiai10/kakehashi/internal/executor/admin"
	"github.com/otiai10/kakehashi/internal/executor/rest"
	"github.com/otiai10/kakehashi/internal/obs"
	"github.com/otiai10/kakehashi/internal/remote"
	"github.com/otiai10/kakehashi/internal/store"
	"github.com/otiai10/kakehashi/internal/version"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.CommitHash)
		return
	}

	// Load .env.localdev file if it exists (for local development)
	// Silently ignore if file doesn't exist (production uses real env vars)
	_ = godotenv.Load(".env.localdev")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := bus.New()
	defer b.Close()

	obs.Init()
	if cfg.Metrics != nil {
		go func() {
			log.Printf("Serving metrics on %s", cfg.Metrics.Addr)
			mux := http.NewServeMux()
			mux.Handle("/metrics", obs.Handler())
			if err := http.ListenAndServe(cfg.Metrics.Addr, mux); err != nil {
				log.Printf("Metrics server stopped: %v", err)
			}
		}()
	}

	// Optional audit trail
	var audit store.AuditRepository
	if cfg.Store != nil {
		log.Printf("Initializing Firestore audit trail for project: %s", cfg.Store.ProjectID)
		firestoreClient, err := store.NewFirestoreClient(ctx, store.FirestoreConfig{
			ProjectID:   cfg.Store.ProjectID,
			Database:    cfg.Store.Database,
			Credentials: cfg.Store.Credentials,
		})
		if err != nil {
			log.Fatalf("Failed to create Firestore client: %v", err)
		}
		defer firestoreClient.Close()
		audit = store.NewFirestoreAuditRepository(firestoreClient.Client())
	}

	// In-process executor
	if cfg.Executor != nil {
		svc, err := buildService(ctx, cfg.Executor)
		if err != nil {
			log.Fatalf("Failed to create executor backend: %v", err)
		}
		var execOpts []executor.Option
		if audit != nil {
			execOpts = append(execOpts, executor.WithAuditRepository(audit))
		}
		exec := executor.New(b, svc, execOpts...)
		exec.Attach(ctx)
		defer exec.Detach()
		log.Printf("Serving auth requests with the %s backend", cfg.Executor.Backend)
	}

	// Remote bus relay
	if cfg.Remote != nil {
		relay, err := remote.NewRelay(cfg.Remote.Endpoint, b, cfg.Remote.Forward, cfg.Remote.Accept)
		if err != nil {
			log.Fatalf("Failed to create relay: %v", err)
		}
		if err := relay.Connect(ctx); err != nil {
			log.Fatalf("Failed to connect relay: %v", err)
		}
		defer relay.Close()
	}

	// Bridge client: observe auth state for the lifetime of the process
	var clientOpts []bridge.Option
	if cfg.Bridge.Timeout > 0 {
		clientOpts = append(clientOpts, bridge.WithTimeout(cfg.Bridge.Timeout))
	}
	client := bridge.NewClient(b, clientOpts...)
	defer client.Close()

	go logAuthState(ctx, client.AuthState())

	log.Printf("kakehashi %s started", version.CommitHash)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("Shutting down...")
	cancel()
}

// buildService picks the executor backend named in the configuration.
func buildService(ctx context.Context, cfg *config.ExecutorConfig) (executor.Service, error) {
	switch cfg.Backend {
	case config.BackendREST:
		return rest.NewService(cfg.APIKey)
	case config.BackendAdmin:
		return admin.NewService(ctx, admin.Config{
			ProjectID:       cfg.ProjectID,
			CredentialsPath: cfg.Credentials,
			TenantID:        cfg.TenantID,
		})
	default:
		return nil, fmt.Errorf("unsupported executor backend: %q", cfg.Backend)
	}
}

// logAuthState mirrors every auth-state transition into the log.
func logAuthState(ctx context.Context, state *bridge.State) {
	for user := range state.Subscribe(ctx) {
		logUser(user)
	}
}

func logUser(user *auth.User) {
	if user == nil {
		log.Println("Auth state: signed out")
		return
	}
	log.Printf("Auth state: signed in as %s (anonymous=%t, verified=%t)", user.UID, user.Anonymous, user.EmailVerified)
}

// Package admin implements the executor Service on the Firebase Admin
// SDK for deployments where the bridge runs inside a trusted backend
// holding service-account credentials. Admin credentials can manage
// accounts but cannot exchange end-user credentials, so the service
// covers the management subset of the catalogue and rejects credential
// sign-ins.
package admin

import (
	"context"
	"fmt"
	"log"

	firebase "firebase.google.com/go/v4"
	firebaseAuth "firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"

	"github.com/otiai10/kakehashi/internal/auth"
	"github.com/otiai10/kakehashi/internal/executor"
)

// userManager is the slice of the Admin SDK client the service needs.
// Both firebaseAuth.Client and firebaseAuth.TenantClient implement it.
type userManager interface {
	GetUser(ctx context.Context, uid string) (*firebaseAuth.UserRecord, error)
	UpdateUser(ctx context.Context, uid string, update *firebaseAuth.UserToUpdate) (*firebaseAuth.UserRecord, error)
	DeleteUser(ctx context.Context, uid string) error
	PasswordResetLink(ctx context.Context, email string) (string, error)
	EmailVerificationLink(ctx context.Context, email string) (string, error)
}

// Config holds configuration for the admin-backed service.
type Config struct {
	ProjectID       string
	CredentialsPath string
	TenantID        string // optional: multi-tenant Identity Platform
}

// Service performs the management subset of auth actions through the
// Firebase Admin SDK.
type Service struct {
	users    userManager
	tenantID string
}

var _ executor.Service = (*Service)(nil)

// NewService creates an admin-backed executor service.
func NewService(ctx context.Context, cfg Config) (*Service, error) {
	var opts []option.ClientOption
	if cfg.CredentialsPath != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsPath))
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{
		ProjectID: cfg.ProjectID,
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create firebase app: %w", err)
	}

	authClient, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get auth client: %w", err)
	}

	var users userManager = authClient
	if cfg.TenantID != "" {
		tenantClient, err := authClient.TenantManager.AuthForTenant(cfg.TenantID)
		if err != nil {
			return nil, fmt.Errorf("failed to get tenant auth client for %s: %w", cfg.TenantID, err)
		}
		users = tenantClient
	}

	return &Service{users: users, tenantID: cfg.TenantID}, nil
}

// Execute dispatches one decoded request to the Admin SDK.
func (s *Service) Execute(ctx context.Context, req executor.Request) (*auth.User, error) {
	switch req.Action {
	case auth.ActionSignOut:
		return nil, nil
	case auth.ActionReloadUser:
		uid, err := currentUID(req)
		if err != nil {
			return nil, err
		}
		record, err := s.users.GetUser(ctx, uid)
		if err != nil {
			return nil, mapAdminError(err)
		}
		return recordToUser(record), nil
	case auth.ActionUpdateProfile:
		update := &firebaseAuth.UserToUpdate{}
		if v := req.Params[auth.ParamDisplayName]; v != "" {
			update.DisplayName(v)
		}
		if v := req.Params[auth.ParamPhotoURL]; v != "" {
			update.PhotoURL(v)
		}
		return s.updateCurrent(ctx, req, update)
	case auth.ActionUpdateEmail:
		return s.updateCurrent(ctx, req, (&firebaseAuth.UserToUpdate{}).Email(req.Params[auth.ParamNewEmail]))
	case auth.ActionUpdatePassword:
		return s.updateCurrent(ctx, req, (&firebaseAuth.UserToUpdate{}).Password(req.Params[auth.ParamNewPassword]))
	case auth.ActionUnlinkProvider:
		return s.updateCurrent(ctx, req, (&firebaseAuth.UserToUpdate{}).ProvidersToDelete([]string{req.Params[auth.ParamProviderID]}))
	case auth.ActionDeleteAccount:
		uid, err := currentUID(req)
		if err != nil {
			return nil, err
		}
		if err := s.users.DeleteUser(ctx, uid); err != nil {
			return nil, mapAdminError(err)
		}
		return nil, nil
	case auth.ActionSendPasswordResetEmail:
		link, err := s.users.PasswordResetLink(ctx, req.Params[auth.ParamEmail])
		if err != nil {
			return nil, mapAdminError(err)
		}
		// The Admin SDK only mints the link; delivery is up to the
		// deployment's mailer.
		log.Printf("Password reset link for %s: %s", req.Params[auth.ParamEmail], link)
		return req.Current, nil
	case auth.ActionSendEmailVerification:
		if req.Current == nil || req.Current.Email == "" {
			return nil, &auth.Error{Code: auth.CodeUserNotFound, Message: "no signed-in user with an email address"}
		}
		link, err := s.users.EmailVerificationLink(ctx, req.Current.Email)
		if err != nil {
			return nil, mapAdminError(err)
		}
		log.Printf("Email verification link for %s: %s", req.Current.Email, link)
		return req.Current, nil
	default:
		return nil, &auth.Error{
			Code:    auth.CodeUnknown,
			Message: fmt.Sprintf("action %q requires end-user credentials and is not supported by the admin backend", string(req.Action)),
		}
	}
}

func (s *Service) updateCurrent(ctx context.Context, req executor.Request, update *firebaseAuth.UserToUpdate) (*auth.User, error) {
	uid, err := currentUID(req)
	if err != nil {
		return nil, err
	}
	record, err := s.users.UpdateUser(ctx, uid, update)
	if err != nil {
		return nil, mapAdminError(err)
	}
	return recordToUser(record), nil
}

func currentUID(req executor.Request) (string, error) {
	if req.Current == nil {
		return "", &auth.Error{Code: auth.CodeUserNotFound, Message: "no signed-in user"}
	}
	return req.Current.UID, nil
}

// recordToUser converts an Admin SDK user record into the domain
// snapshot.
func recordToUser(record *firebaseAuth.UserRecord) *auth.User {
	if record == nil || record.UID == "" {
		return nil
	}
	providers := make([]string, 0, len(record.ProviderUserInfo))
	for _, info := range record.ProviderUserInfo {
		if info != nil && info.ProviderID != "" {
			providers = append(providers, info.ProviderID)
		}
	}
	return &auth.User{
		UID:           record.UID,
		DisplayName:   record.DisplayName,
		Email:         record.Email,
		PhotoURL:      record.PhotoURL,
		Anonymous:     len(providers) == 0 && record.Email == "",
		EmailVerified: record.EmailVerified,
		ProviderIDs:   providers,
	}
}

// mapAdminError folds Admin SDK failures into the taxonomy.
func mapAdminError(err error) error {
	switch {
	case firebaseAuth.IsUserNotFound(err):
		return &auth.Error{Code: auth.CodeUserNotFound, Message: err.Error()}
	case firebaseAuth.IsEmailAlreadyExists(err):
		return &auth.Error{Code: auth.CodeEmailAlreadyInUse, Message: err.Error()}
	default:
		return &auth.Error{Code: auth.CodeUnknown, Message: err.Error()}
	}
}

// Package rest implements the executor Service against the Firebase
// Authentication REST API (identitytoolkit.googleapis.com), for
// deployments without a native Firebase SDK. It keeps one signed-in
// session (ID token, refresh token, expiry) and refreshes the token
// through securetoken.googleapis.com when it expires.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/otiai10/kakehashi/internal/auth"
	"github.com/otiai10/kakehashi/internal/executor"
)

const (
	defaultIdentityEndpoint = "https://identitytoolkit.googleapis.com/v1"
	defaultTokenEndpoint    = "https://securetoken.googleapis.com/v1"

	// expiryLeeway triggers a refresh slightly before the token's exp
	// claim so an in-flight call never carries an expired token.
	expiryLeeway = 30 * time.Second
)

// session is the one signed-in principal the service acts as.
type session struct {
	idToken      string
	refreshToken string
	expiresAt    time.Time
	anonymous    bool
}

// Service performs auth actions against the Firebase REST API.
// It is safe for concurrent use.
type Service struct {
	apiKey           string
	client           *http.Client
	identityEndpoint string
	tokenEndpoint    string

	mu      sync.Mutex
	session *session
}

var _ executor.Service = (*Service)(nil)

// ServiceOption configures the Service.
type ServiceOption func(*Service)

// WithTimeout sets the HTTP request timeout. Default is 10 seconds.
func WithTimeout(d time.Duration) ServiceOption {
	return func(s *Service) {
		s.client.Timeout = d
	}
}

// WithHTTPClient replaces the HTTP client entirely.
func WithHTTPClient(client *http.Client) ServiceOption {
	return func(s *Service) {
		s.client = client
	}
}

// WithEndpoints overrides the identitytoolkit and securetoken base URLs.
// Used with the Firebase Auth emulator and in tests.
func WithEndpoints(identity, token string) ServiceOption {
	return func(s *Service) {
		s.identityEndpoint = identity
		s.tokenEndpoint = token
	}
}

// NewService creates a REST-backed executor service for the Firebase
// project identified by apiKey (the project's Web API key).
func NewService(apiKey string, opts ...ServiceOption) (*Service, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("apiKey is required")
	}
	s := &Service{
		apiKey:           apiKey,
		client:           &http.Client{Timeout: 10 * time.Second},
		identityEndpoint: defaultIdentityEndpoint,
		tokenEndpoint:    defaultTokenEndpoint,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Execute dispatches one decoded request to the REST API.
func (s *Service) Execute(ctx context.Context, req executor.Request) (*auth.User, error) {
	params := req.Params
	switch req.Action {
	case auth.ActionAnonymous:
		return s.signUp(ctx, "", "")
	case auth.ActionSignUpWithEmailAndPassword:
		return s.signUp(ctx, params[auth.ParamEmail], params[auth.ParamPassword])
	case auth.ActionSignInWithEmailAndPassword:
		return s.signInWithPassword(ctx, params[auth.ParamEmail], params[auth.ParamPassword], nil)
	case auth.ActionGoogle:
		return s.signInWithIdp(ctx, auth.ProviderGoogle, params[auth.ParamIDToken], false, nil)
	case auth.ActionApple:
		return s.signInWithIdp(ctx, auth.ProviderApple, params[auth.ParamIDToken], false, nil)
	case auth.ActionFacebook:
		return s.signInWithIdp(ctx, auth.ProviderFacebook, params[auth.ParamAccessToken], false, nil)
	case auth.ActionSignOut:
		s.clearSession()
		return nil, nil
	case auth.ActionSendPasswordResetEmail:
		return nil, s.sendOobCode(ctx, "PASSWORD_RESET", params[auth.ParamEmail], false)
	case auth.ActionConfirmPasswordReset:
		return nil, s.confirmPasswordReset(ctx, params[auth.ParamCode], params[auth.ParamNewPassword])
	case auth.ActionUpdatePassword:
		return s.update(ctx, map[string]any{"password": params[auth.ParamNewPassword], "returnSecureToken": true})
	case auth.ActionSendEmailVerification:
		return nil, s.sendOobCode(ctx, "VERIFY_EMAIL", "", true)
	case auth.ActionApplyActionCode:
		return nil, s.applyActionCode(ctx, params[auth.ParamCode])
	case auth.ActionUpdateProfile:
		fields := map[string]any{"returnSecureToken": true}
		if v := params[auth.ParamDisplayName]; v != "" {
			fields["displayName"] = v
		}
		if v := params[auth.ParamPhotoURL]; v != "" {
			fields["photoUrl"] = v
		}
		return s.update(ctx, fields)
	case auth.ActionUpdateEmail:
		return s.update(ctx, map[string]any{"email": params[auth.ParamNewEmail], "returnSecureToken": true})
	case auth.ActionReloadUser:
		return s.lookup(ctx)
	case auth.ActionDeleteAccount:
		return nil, s.deleteAccount(ctx)
	case auth.ActionLinkWithGoogle:
		return s.signInWithIdp(ctx, auth.ProviderGoogle, params[auth.ParamIDToken], true, nil)
	case auth.ActionLinkWithApple:
		return s.signInWithIdp(ctx, auth.ProviderApple, params[auth.ParamIDToken], true, nil)
	case auth.ActionLinkWithFacebook:
		return s.signInWithIdp(ctx, auth.ProviderFacebook, params[auth.ParamAccessToken], true, nil)
	case auth.ActionLinkWithEmailAndPassword:
		return s.update(ctx, map[string]any{
			"email":             params[auth.ParamEmail],
			"password":          params[auth.ParamPassword],
			"returnSecureToken": true,
		})
	case auth.ActionUnlinkProvider:
		return s.update(ctx, map[string]any{"deleteProvider": []string{params[auth.ParamProviderID]}})
	case auth.ActionReauthenticateWithEmail:
		return s.signInWithPassword(ctx, params[auth.ParamEmail], params[auth.ParamPassword], req.Current)
	case auth.ActionReauthenticateWithGoogle:
		return s.signInWithIdp(ctx, auth.ProviderGoogle, params[auth.ParamIDToken], false, req.Current)
	case auth.ActionReauthenticateWithApple:
		return s.signInWithIdp(ctx, auth.ProviderApple, params[auth.ParamIDToken], false, req.Current)
	default:
		return nil, &auth.Error{Code: auth.CodeUnknown, Message: fmt.Sprintf("action %q is not supported by the REST backend", string(req.Action))}
	}
}

// tokenResponse is the common shape of every identitytoolkit call that
// establishes or refreshes a session.
type tokenResponse struct {
	IDToken      string `json:"idToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    string `json:"expiresIn"`
	LocalID      string `json:"localId"`
}

func (s *Service) signUp(ctx context.Context, email, password string) (*auth.User, error) {
	body := map[string]any{"returnSecureToken": true}
	if email != "" {
		body["email"] = email
		body["password"] = password
	}
	var out tokenResponse
	if err := s.call(ctx, s.identityURL("accounts:signUp"), body, &out); err != nil {
		return nil, err
	}
	s.setSession(&out, email == "")
	return s.lookup(ctx)
}

// signInWithPassword signs in with an email/password credential. When
// reauth is non-nil the call must resolve to the same user, mirroring
// the native SDK's user-mismatch check.
func (s *Service) signInWithPassword(ctx context.Context, email, password string, reauth *auth.User) (*auth.User, error) {
	body := map[string]any{
		"email":             email,
		"password":          password,
		"returnSecureToken": true,
	}
	var out tokenResponse
	if err := s.call(ctx, s.identityURL("accounts:signInWithPassword"), body, &out); err != nil {
		return nil, err
	}
	if reauth != nil && reauth.UID != out.LocalID {
		return nil, &auth.Error{Code: auth.CodeInvalidCredential, Message: "credential does not belong to the signed-in user"}
	}
	s.setSession(&out, false)
	return s.lookup(ctx)
}

// signInWithIdp exchanges a third-party OAuth credential. With link set
// the credential is attached to the current session's user instead of
// starting a new session.
func (s *Service) signInWithIdp(ctx context.Context, providerID, credential string, link bool, reauth *auth.User) (*auth.User, error) {
	postBody := url.Values{}
	if providerID == auth.ProviderFacebook {
		postBody.Set("access_token", credential)
	} else {
		postBody.Set("id_token", credential)
	}
	postBody.Set("providerId", providerID)

	body := map[string]any{
		"postBody":            postBody.Encode(),
		"requestUri":          "http://localhost",
		"returnSecureToken":   true,
		"returnIdpCredential": true,
	}
	if link {
		idToken, err := s.authToken(ctx)
		if err != nil {
			return nil, err
		}
		body["idToken"] = idToken
	}

	var out tokenResponse
	if err := s.call(ctx, s.identityURL("accounts:signInWithIdp"), body, &out); err != nil {
		return nil, err
	}
	if reauth != nil && reauth.UID != out.LocalID {
		return nil, &auth.Error{Code: auth.CodeInvalidCredential, Message: "credential does not belong to the signed-in user"}
	}
	s.setSession(&out, false)
	return s.lookup(ctx)
}

func (s *Service) sendOobCode(ctx context.Context, requestType, email string, authed bool) error {
	body := map[string]any{"requestType": requestType}
	if email != "" {
		body["email"] = email
	}
	if authed {
		idToken, err := s.authToken(ctx)
		if err != nil {
			return err
		}
		body["idToken"] = idToken
	}
	return s.call(ctx, s.identityURL("accounts:sendOobCode"), body, nil)
}

func (s *Service) confirmPasswordReset(ctx context.Context, code, newPassword string) error {
	body := map[string]any{"oobCode": code, "newPassword": newPassword}
	return s.call(ctx, s.identityURL("accounts:resetPassword"), body, nil)
}

func (s *Service) applyActionCode(ctx context.Context, code string) error {
	body := map[string]any{"oobCode": code}
	return s.call(ctx, s.identityURL("accounts:update"), body, nil)
}

// update applies account changes to the signed-in user and returns the
// refreshed snapshot. The REST API rotates tokens on sensitive changes,
// so a returned token pair replaces the session.
func (s *Service) update(ctx context.Context, fields map[string]any) (*auth.User, error) {
	idToken, err := s.authToken(ctx)
	if err != nil {
		return nil, err
	}
	fields["idToken"] = idToken

	var out tokenResponse
	if err := s.call(ctx, s.identityURL("accounts:update"), fields, &out); err != nil {
		return nil, err
	}
	if out.IDToken != "" {
		s.setSession(&out, s.sessionAnonymous())
	}
	return s.lookup(ctx)
}

func (s *Service) deleteAccount(ctx context.Context) error {
	idToken, err := s.authToken(ctx)
	if err != nil {
		return err
	}
	body := map[string]any{"idToken": idToken}
	if err := s.call(ctx, s.identityURL("accounts:delete"), body, nil); err != nil {
		return err
	}
	s.clearSession()
	return nil
}

// lookup fetches the current user snapshot.
func (s *Service) lookup(ctx context.Context) (*auth.User, error) {
	idToken, err := s.authToken(ctx)
	if err != nil {
		return nil, err
	}
	body := map[string]any{"idToken": idToken}

	var out struct {
		Users []struct {
			LocalID          string `json:"localId"`
			Email            string `json:"email"`
			DisplayName      string `json:"displayName"`
			PhotoURL         string `json:"photoUrl"`
			EmailVerified    bool   `json:"emailVerified"`
			ProviderUserInfo []struct {
				ProviderID string `json:"providerId"`
			} `json:"providerUserInfo"`
		} `json:"users"`
	}
	if err := s.call(ctx, s.identityURL("accounts:lookup"), body, &out); err != nil {
		return nil, err
	}
	if len(out.Users) == 0 {
		return nil, &auth.Error{Code: auth.CodeUserNotFound, Message: "account lookup returned no user"}
	}

	u := out.Users[0]
	providers := make([]string, 0, len(u.ProviderUserInfo))
	for _, p := range u.ProviderUserInfo {
		providers = append(providers, p.ProviderID)
	}
	return &auth.User{
		UID:           u.LocalID,
		DisplayName:   u.DisplayName,
		Email:         u.Email,
		PhotoURL:      u.PhotoURL,
		Anonymous:     s.sessionAnonymous() || (len(providers) == 0 && u.Email == ""),
		EmailVerified: u.EmailVerified,
		ProviderIDs:   providers,
	}, nil
}

// authToken returns a valid ID token for the signed-in session,
// refreshing it when it is about to expire.
func (s *Service) authToken(ctx context.Context) (string, error) {
	s.mu.Lock()
	sess := s.session
	s.mu.Unlock()
	if sess == nil {
		return "", &auth.Error{Code: auth.CodeUserNotFound, Message: "no signed-in user"}
	}
	if time.Until(sess.expiresAt) > expiryLeeway {
		return sess.idToken, nil
	}

	body := url.Values{}
	body.Set("grant_type", "refresh_token")
	body.Set("refresh_token", sess.refreshToken)

	endpoint := fmt.Sprintf("%s/token?key=%s", s.tokenEndpoint, url.QueryEscape(s.apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBufferString(body.Encode()))
	if err != nil {
		return "", &auth.Error{Code: auth.CodeUnknown, Message: err.Error()}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", &auth.Error{Code: auth.CodeNetwork, Message: err.Error()}
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &auth.Error{Code: auth.CodeNetwork, Message: err.Error()}
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return "", decodeAPIError(data)
	}

	var out struct {
		IDToken      string `json:"id_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    string `json:"expires_in"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return "", &auth.Error{Code: auth.CodeUnknown, Message: fmt.Sprintf("malformed token response: %v", err)}
	}

	s.mu.Lock()
	if s.session != nil {
		s.session.idToken = out.IDToken
		s.session.refreshToken = out.RefreshToken
		s.session.expiresAt = tokenExpiry(out.IDToken, out.ExpiresIn)
	}
	token := out.IDToken
	s.mu.Unlock()
	return token, nil
}

func (s *Service) setSession(t *tokenResponse, anonymous bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = &session{
		idToken:      t.IDToken,
		refreshToken: t.RefreshToken,
		expiresAt:    tokenExpiry(t.IDToken, t.ExpiresIn),
		anonymous:    anonymous,
	}
}

func (s *Service) clearSession() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = nil
}

func (s *Service) sessionAnonymous() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session != nil && s.session.anonymous
}

func (s *Service) identityURL(method string) string {
	return fmt.Sprintf("%s/%s?key=%s", s.identityEndpoint, method, url.QueryEscape(s.apiKey))
}

// call POSTs a JSON body and decodes the JSON response into out.
// Transport failures map to Network; API failures map through the
// error-code tables; undecodable successes map to Unknown.
func (s *Service) call(ctx context.Context, endpoint string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return &auth.Error{Code: auth.CodeUnknown, Message: err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return &auth.Error{Code: auth.CodeUnknown, Message: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return &auth.Error{Code: auth.CodeNetwork, Message: err.Error()}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &auth.Error{Code: auth.CodeNetwork, Message: err.Error()}
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return decodeAPIError(data)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &auth.Error{Code: auth.CodeUnknown, Message: fmt.Sprintf("malformed response: %v", err)}
	}
	return nil
}

// decodeAPIError extracts the identitytoolkit error identifier from an
// error envelope and folds it into the taxonomy.
func decodeAPIError(data []byte) error {
	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil || envelope.Error.Message == "" {
		return &auth.Error{Code: auth.CodeUnknown, Message: string(data)}
	}
	return auth.FromErrorCode(envelope.Error.Message, envelope.Error.Message)
}

// tokenExpiry derives the session expiry from the ID token's exp claim,
// falling back to the expiresIn duration the API reported.
func tokenExpiry(idToken, expiresIn string) time.Time {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(idToken, claims); err == nil {
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			return exp.Time
		}
	}
	if secs, err := strconv.Atoi(expiresIn); err == nil && secs > 0 {
		return time.Now().Add(time.Duration(secs) * time.Second)
	}
	return time.Now().Add(time.Hour)
}

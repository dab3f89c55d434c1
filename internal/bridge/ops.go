package bridge

import (
	"context"

	"github.com/otiai10/kakehashi/internal/auth"
)

// Typed wrappers over Perform, one per operation in the catalogue.
// They only assemble parameters; validation and correlation live in
// Perform.

func (c *Client) SignInAnonymously(ctx context.Context) (*auth.User, error) {
	return c.Perform(ctx, auth.ActionAnonymous, nil)
}

func (c *Client) SignUpWithEmailAndPassword(ctx context.Context, email, password string) (*auth.User, error) {
	return c.Perform(ctx, auth.ActionSignUpWithEmailAndPassword, map[string]string{
		auth.ParamEmail: email, auth.ParamPassword: password,
	})
}

func (c *Client) SignInWithEmailAndPassword(ctx context.Context, email, password string) (*auth.User, error) {
	return c.Perform(ctx, auth.ActionSignInWithEmailAndPassword, map[string]string{
		auth.ParamEmail: email, auth.ParamPassword: password,
	})
}

// SignInWithGoogle runs the external Google consent flow, then signs in
// with the obtained ID token.
func (c *Client) SignInWithGoogle(ctx context.Context) (*auth.User, error) {
	idToken, err := c.RequestGoogleSignIn(ctx)
	if err != nil {
		return nil, err
	}
	return c.Perform(ctx, auth.ActionGoogle, map[string]string{auth.ParamIDToken: idToken})
}

// SignInWithApple runs the external Apple consent flow, then signs in
// with the obtained ID token.
func (c *Client) SignInWithApple(ctx context.Context) (*auth.User, error) {
	idToken, err := c.RequestAppleSignIn(ctx)
	if err != nil {
		return nil, err
	}
	return c.Perform(ctx, auth.ActionApple, map[string]string{auth.ParamIDToken: idToken})
}

func (c *Client) SignInWithFacebook(ctx context.Context, accessToken string) (*auth.User, error) {
	return c.Perform(ctx, auth.ActionFacebook, map[string]string{auth.ParamAccessToken: accessToken})
}

func (c *Client) SignOut(ctx context.Context) error {
	_, err := c.Perform(ctx, auth.ActionSignOut, nil)
	return err
}

func (c *Client) SendPasswordResetEmail(ctx context.Context, email string) error {
	_, err := c.Perform(ctx, auth.ActionSendPasswordResetEmail, map[string]string{auth.ParamEmail: email})
	return err
}

func (c *Client) ConfirmPasswordReset(ctx context.Context, code, newPassword string) error {
	_, err := c.Perform(ctx, auth.ActionConfirmPasswordReset, map[string]string{
		auth.ParamCode: code, auth.ParamNewPassword: newPassword,
	})
	return err
}

func (c *Client) UpdatePassword(ctx context.Context, newPassword string) (*auth.User, error) {
	return c.Perform(ctx, auth.ActionUpdatePassword, map[string]string{auth.ParamNewPassword: newPassword})
}

func (c *Client) SendEmailVerification(ctx context.Context) error {
	_, err := c.Perform(ctx, auth.ActionSendEmailVerification, nil)
	return err
}

func (c *Client) ApplyActionCode(ctx context.Context, code string) error {
	_, err := c.Perform(ctx, auth.ActionApplyActionCode, map[string]string{auth.ParamCode: code})
	return err
}

// UpdateProfile updates the display name and/or photo URL. Empty
// strings leave the corresponding field untouched; at least one must be
// provided.
func (c *Client) UpdateProfile(ctx context.Context, displayName, photoURL string) (*auth.User, error) {
	params := map[string]string{}
	if displayName != "" {
		params[auth.ParamDisplayName] = displayName
	}
	if photoURL != "" {
		params[auth.ParamPhotoURL] = photoURL
	}
	return c.Perform(ctx, auth.ActionUpdateProfile, params)
}

func (c *Client) UpdateEmail(ctx context.Context, newEmail string) (*auth.User, error) {
	return c.Perform(ctx, auth.ActionUpdateEmail, map[string]string{auth.ParamNewEmail: newEmail})
}

func (c *Client) ReloadUser(ctx context.Context) (*auth.User, error) {
	return c.Perform(ctx, auth.ActionReloadUser, nil)
}

func (c *Client) DeleteAccount(ctx context.Context) error {
	_, err := c.Perform(ctx, auth.ActionDeleteAccount, nil)
	return err
}

func (c *Client) LinkWithGoogle(ctx context.Context, idToken string) (*auth.User, error) {
	return c.Perform(ctx, auth.ActionLinkWithGoogle, map[string]string{auth.ParamIDToken: idToken})
}

func (c *Client) LinkWithApple(ctx context.Context, idToken string) (*auth.User, error) {
	return c.Perform(ctx, auth.ActionLinkWithApple, map[string]string{auth.ParamIDToken: idToken})
}

func (c *Client) LinkWithFacebook(ctx context.Context, accessToken string) (*auth.User, error) {
	return c.Perform(ctx, auth.ActionLinkWithFacebook, map[string]string{auth.ParamAccessToken: accessToken})
}

func (c *Client) LinkWithEmailAndPassword(ctx context.Context, email, password string) (*auth.User, error) {
	return c.Perform(ctx, auth.ActionLinkWithEmailAndPassword, map[string]string{
		auth.ParamEmail: email, auth.ParamPassword: password,
	})
}

func (c *Client) UnlinkProvider(ctx context.Context, providerID string) (*auth.User, error) {
	return c.Perform(ctx, auth.ActionUnlinkProvider, map[string]string{auth.ParamProviderID: providerID})
}

func (c *Client) ReauthenticateWithEmail(ctx context.Context, email, password string) (*auth.User, error) {
	return c.Perform(ctx, auth.ActionReauthenticateWithEmail, map[string]string{
		auth.ParamEmail: email, auth.ParamPassword: password,
	})
}

func (c *Client) ReauthenticateWithGoogle(ctx context.Context, idToken string) (*auth.User, error) {
	return c.Perform(ctx, auth.ActionReauthenticateWithGoogle, map[string]string{auth.ParamIDToken: idToken})
}

func (c *Client) ReauthenticateWithApple(ctx context.Context, idToken string) (*auth.User, error) {
	return c.Perform(ctx, auth.ActionReauthenticateWithApple, map[string]string{auth.ParamIDToken: idToken})
}

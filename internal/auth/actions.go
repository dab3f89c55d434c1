package auth

import "fmt"

// Action discriminates the operation carried by a request message.
type Action string

// The full operation catalogue understood by executors. No other action
// name is meaningful on the request channel.
const (
	ActionAnonymous                  Action = "anonymous"
	ActionSignUpWithEmailAndPassword Action = "signUpWithEmailAndPassword"
	ActionSignInWithEmailAndPassword Action = "signInWithEmailAndPassword"
	ActionGoogle                     Action = "google"
	ActionApple                      Action = "apple"
	ActionFacebook                   Action = "facebook"
	ActionSignOut                    Action = "signOut"
	ActionSendPasswordResetEmail     Action = "sendPasswordResetEmail"
	ActionConfirmPasswordReset       Action = "confirmPasswordReset"
	ActionUpdatePassword             Action = "updatePassword"
	ActionSendEmailVerification      Action = "sendEmailVerification"
	ActionApplyActionCode            Action = "applyActionCode"
	ActionUpdateProfile              Action = "updateProfile"
	ActionUpdateEmail                Action = "updateEmail"
	ActionReloadUser                 Action = "reloadUser"
	ActionDeleteAccount              Action = "deleteAccount"
	ActionLinkWithGoogle             Action = "linkWithGoogle"
	ActionLinkWithApple              Action = "linkWithApple"
	ActionLinkWithFacebook           Action = "linkWithFacebook"
	ActionLinkWithEmailAndPassword   Action = "linkWithEmailAndPassword"
	ActionUnlinkProvider             Action = "unlinkProvider"
	ActionReauthenticateWithEmail    Action = "reauthenticateWithEmail"
	ActionReauthenticateWithGoogle   Action = "reauthenticateWithGoogle"
	ActionReauthenticateWithApple    Action = "reauthenticateWithApple"
)

// Well-known parameter names.
const (
	ParamEmail       = "email"
	ParamPassword    = "password"
	ParamIDToken     = "idToken"
	ParamAccessToken = "accessToken"
	ParamCode        = "code"
	ParamNewPassword = "newPassword"
	ParamNewEmail    = "newEmail"
	ParamDisplayName = "displayName"
	ParamPhotoURL    = "photoUrl"
	ParamProviderID  = "providerId"
)

// requiredParams lists the parameters each action must carry.
// Presence of the action key alone marks it as recognized.
var requiredParams = map[Action][]string{
	ActionAnonymous:                  nil,
	ActionSignUpWithEmailAndPassword: {ParamEmail, ParamPassword},
	ActionSignInWithEmailAndPassword: {ParamEmail, ParamPassword},
	ActionGoogle:                     {ParamIDToken},
	ActionApple:                      {ParamIDToken},
	ActionFacebook:                   {ParamAccessToken},
	ActionSignOut:                    nil,
	ActionSendPasswordResetEmail:     {ParamEmail},
	ActionConfirmPasswordReset:       {ParamCode, ParamNewPassword},
	ActionUpdatePassword:             {ParamNewPassword},
	ActionSendEmailVerification:      nil,
	ActionApplyActionCode:            {ParamCode},
	ActionUpdateProfile:              nil, // at least one of displayName/photoUrl, checked below
	ActionUpdateEmail:                {ParamNewEmail},
	ActionReloadUser:                 nil,
	ActionDeleteAccount:              nil,
	ActionLinkWithGoogle:             {ParamIDToken},
	ActionLinkWithApple:              {ParamIDToken},
	ActionLinkWithFacebook:           {ParamAccessToken},
	ActionLinkWithEmailAndPassword:   {ParamEmail, ParamPassword},
	ActionUnlinkProvider:             {ParamProviderID},
	ActionReauthenticateWithEmail:    {ParamEmail, ParamPassword},
	ActionReauthenticateWithGoogle:   {ParamIDToken},
	ActionReauthenticateWithApple:    {ParamIDToken},
}

// Valid reports whether a is a recognized operation.
func (a Action) Valid() bool {
	_, ok := requiredParams[a]
	return ok
}

// ValidateParams checks that params carries everything the action needs.
// The returned error is a typed *Error with CodeMissingParameter, so the
// failure short-circuits before the request ever reaches the bus.
func (a Action) ValidateParams(params map[string]string) error {
	required, ok := requiredParams[a]
	if !ok {
		return &Error{Code: CodeUnknown, Message: fmt.Sprintf("unrecognized action %q", string(a))}
	}
	for _, name := range required {
		if params[name] == "" {
			return MissingParameter(name)
		}
	}
	if a == ActionUpdateProfile && params[ParamDisplayName] == "" && params[ParamPhotoURL] == "" {
		return MissingParameter(ParamDisplayName + " or " + ParamPhotoURL)
	}
	return nil
}

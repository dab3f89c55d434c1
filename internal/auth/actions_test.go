package auth

import (
	"errors"
	"testing"
)

func TestAction_Valid(t *testing.T) {
	if !ActionSignInWithEmailAndPassword.Valid() {
		t.Error("signInWithEmailAndPassword should be recognized")
	}
	if Action("frobnicate").Valid() {
		t.Error("made-up action should not be recognized")
	}
	if Action("").Valid() {
		t.Error("empty action should not be recognized")
	}
}

func TestValidateParams_RequiredFields(t *testing.T) {
	tests := []struct {
		name   string
		action Action
		params map[string]string
		wantOK bool
	}{
		{"anonymous needs nothing", ActionAnonymous, nil, true},
		{"sign-in complete", ActionSignInWithEmailAndPassword, map[string]string{"email": "a@b.com", "password": "secret1"}, true},
		{"sign-in missing password", ActionSignInWithEmailAndPassword, map[string]string{"email": "a@b.com"}, false},
		{"sign-in empty password", ActionSignInWithEmailAndPassword, map[string]string{"email": "a@b.com", "password": ""}, false},
		{"google needs idToken", ActionGoogle, map[string]string{}, false},
		{"facebook needs accessToken", ActionFacebook, map[string]string{"accessToken": "tok"}, true},
		{"confirm reset needs both", ActionConfirmPasswordReset, map[string]string{"code": "c"}, false},
		{"unlink needs providerId", ActionUnlinkProvider, map[string]string{"providerId": ProviderGoogle}, true},
		{"reauth email complete", ActionReauthenticateWithEmail, map[string]string{"email": "a@b.com", "password": "x"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.action.ValidateParams(tt.params)
			if tt.wantOK && err != nil {
				t.Errorf("expected valid, got %v", err)
			}
			if !tt.wantOK {
				var ae *Error
				if !errors.As(err, &ae) || ae.Code != CodeMissingParameter {
					t.Errorf("expected MissingParameter, got %v", err)
				}
			}
		})
	}
}

// TestValidateParams_UpdateProfile verifies the at-least-one rule.
func TestValidateParams_UpdateProfile(t *testing.T) {
	if err := ActionUpdateProfile.ValidateParams(map[string]string{"displayName": "Taro"}); err != nil {
		t.Errorf("displayName alone should be enough: %v", err)
	}
	if err := ActionUpdateProfile.ValidateParams(map[string]string{"photoUrl": "https://example.com/p.png"}); err != nil {
		t.Errorf("photoUrl alone should be enough: %v", err)
	}
	if err := ActionUpdateProfile.ValidateParams(map[string]string{}); err == nil {
		t.Error("neither field should fail validation")
	}
}

func TestValidateParams_UnrecognizedAction(t *testing.T) {
	err := Action("frobnicate").ValidateParams(nil)
	if err == nil {
		t.Fatal("expected an error")
	}
	var ae *Error
	if !errors.As(err, &ae) || ae.Code != CodeUnknown {
		t.Errorf("expected Unknown, got %v", err)
	}
}

package auth

import (
	"fmt"

	"github.com/otiai10/kakehashi/internal/bus"
)

// Channel names used on the bus. Request/response pairs are correlated
// by requestId; the auth-state channel is an unkeyed broadcast.
const (
	TopicAuthRequest  = "AuthRequest"
	TopicAuthResponse = "AuthResponse"
	TopicAuthState    = "AuthState"

	TopicGoogleSignInRequest   = "GoogleSignInRequest"
	TopicGoogleSignInCompleted = "GoogleSignInCompleted"
	TopicAppleSignInRequest    = "AppleSignInRequest"
	TopicAppleSignInCompleted  = "AppleSignInCompleted"
)

// Payload field names shared by both sides of the bridge.
const (
	KeyRequestID     = "requestId"
	KeyAction        = "action"
	KeyStatus        = "status"
	KeyErrorCode     = "errorCode"
	KeyErrorMessage  = "errorMessage"
	KeyUID           = "uid"
	KeyEmail         = "email"
	KeyDisplayName   = "displayName"
	KeyPhotoURL      = "photoUrl"
	KeyIsAnonymous   = "isAnonymous"
	KeyEmailVerified = "isEmailVerified"
	KeyProviderData  = "providerData"
	KeyIDToken       = "idToken"
)

// Status values on the response channel. Anything other than
// StatusSuccess is treated as a failure.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// EncodeRequest builds the request payload for one operation call.
func EncodeRequest(requestID string, action Action, params map[string]string) bus.Payload {
	p := bus.Payload{
		KeyRequestID: requestID,
		KeyAction:    string(action),
	}
	for k, v := range params {
		p[k] = v
	}
	return p
}

// DecodeRequest reads a request payload published by the bridge.
func DecodeRequest(p bus.Payload) (requestID string, action Action, params map[string]string, err error) {
	requestID = getString(p, KeyRequestID)
	if requestID == "" {
		return "", "", nil, fmt.Errorf("request payload has no %s", KeyRequestID)
	}
	action = Action(getString(p, KeyAction))
	if !action.Valid() {
		return requestID, action, nil, fmt.Errorf("request %s carries unrecognized action %q", requestID, string(action))
	}
	params = make(map[string]string)
	for k, v := range p {
		if k == KeyRequestID || k == KeyAction {
			continue
		}
		if s, ok := v.(string); ok {
			params[k] = s
		}
	}
	return requestID, action, params, nil
}

// EncodeSuccess builds a success response carrying the user snapshot,
// or the signed-out sentinel when u is nil.
func EncodeSuccess(requestID string, u *User) bus.Payload {
	p := EncodeUser(u)
	p[KeyRequestID] = requestID
	p[KeyStatus] = StatusSuccess
	return p
}

// EncodeFailure builds a failure response from an error identifier and
// a human-readable message.
func EncodeFailure(requestID, errorCode, errorMessage string) bus.Payload {
	return bus.Payload{
		KeyRequestID:    requestID,
		KeyStatus:       StatusFailure,
		KeyErrorCode:    errorCode,
		KeyErrorMessage: errorMessage,
	}
}

// DecodeResponse turns a response payload into the caller's result.
// On success the user snapshot is returned (nil for the signed-out
// sentinel); on failure a typed *Error is returned. A payload with no
// status at all decodes as an Unknown failure.
func DecodeResponse(p bus.Payload) (*User, error) {
	switch getString(p, KeyStatus) {
	case StatusSuccess:
		return DecodeUser(p), nil
	case "":
		return nil, &Error{Code: CodeUnknown, Message: "response payload has no status"}
	default:
		return nil, FromErrorCode(getString(p, KeyErrorCode), getString(p, KeyErrorMessage))
	}
}

package auth

import "fmt"

// Code classifies an authentication failure. The set is closed: executor
// error identifiers are folded into the nearest member and anything
// unrecognized becomes CodeUnknown.
type Code string

const (
	CodeInvalidCredential      Code = "InvalidCredential"
	CodeInvalidEmailOrPassword Code = "InvalidEmailOrPassword"
	CodeEmailAlreadyInUse      Code = "EmailAlreadyInUse"
	CodeWeakPassword           Code = "WeakPassword"
	CodeUserNotFound           Code = "UserNotFound"
	CodeWrongPassword          Code = "WrongPassword"
	CodeUserDisabled           Code = "UserDisabled"
	CodeTooManyRequests        Code = "TooManyRequests"
	CodeEmailNotVerified       Code = "EmailNotVerified"
	CodeRequiresRecentLogin    Code = "RequiresRecentLogin"
	CodeProviderAlreadyLinked  Code = "ProviderAlreadyLinked"
	CodeNoSuchProvider         Code = "NoSuchProvider"
	CodeInvalidEmail           Code = "InvalidEmail"
	CodeNetwork                Code = "Network"
	CodeUnknown                Code = "Unknown"
	CodeMissingParameter       Code = "MissingParameter"
)

// Error is the typed failure value handed to callers. It never crosses
// the suspension boundary as a panic; operations return it as a plain
// error.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// MissingParameter builds the pre-flight validation failure for a
// request that never reaches the executor.
func MissingParameter(name string) *Error {
	return &Error{Code: CodeMissingParameter, Message: fmt.Sprintf("required parameter %s is missing", name)}
}

// nativeCodes maps error identifiers reported by the Firebase native
// SDKs (ERROR_* style, as the iOS and Android SDKs emit them).
var nativeCodes = map[string]Code{
	"ERROR_INVALID_CREDENTIAL":        CodeInvalidCredential,
	"ERROR_INVALID_LOGIN_CREDENTIALS": CodeInvalidEmailOrPassword,
	"ERROR_EMAIL_ALREADY_IN_USE":      CodeEmailAlreadyInUse,
	"ERROR_WEAK_PASSWORD":             CodeWeakPassword,
	"ERROR_USER_NOT_FOUND":            CodeUserNotFound,
	"ERROR_WRONG_PASSWORD":            CodeWrongPassword,
	"ERROR_USER_DISABLED":             CodeUserDisabled,
	"ERROR_TOO_MANY_REQUESTS":         CodeTooManyRequests,
	"ERROR_UNVERIFIED_EMAIL":          CodeEmailNotVerified,
	"ERROR_REQUIRES_RECENT_LOGIN":     CodeRequiresRecentLogin,
	"ERROR_PROVIDER_ALREADY_LINKED":   CodeProviderAlreadyLinked,
	"ERROR_NO_SUCH_PROVIDER":          CodeNoSuchProvider,
	"ERROR_INVALID_EMAIL":             CodeInvalidEmail,
	"ERROR_NETWORK_REQUEST_FAILED":    CodeNetwork,
	"ERROR_EXPIRED_ACTION_CODE":       CodeInvalidCredential,
	"ERROR_INVALID_ACTION_CODE":       CodeInvalidCredential,
}

// restCodes maps error identifiers reported by the Firebase Auth REST
// API (identitytoolkit). The REST API sometimes suffixes the identifier
// with an explanation (" : ..."), which FromErrorCode strips.
var restCodes = map[string]Code{
	"INVALID_IDP_RESPONSE":           CodeInvalidCredential,
	"INVALID_LOGIN_CREDENTIALS":      CodeInvalidEmailOrPassword,
	"EMAIL_EXISTS":                   CodeEmailAlreadyInUse,
	"WEAK_PASSWORD":                  CodeWeakPassword,
	"EMAIL_NOT_FOUND":                CodeUserNotFound,
	"INVALID_PASSWORD":               CodeWrongPassword,
	"USER_DISABLED":                  CodeUserDisabled,
	"TOO_MANY_ATTEMPTS_TRY_LATER":    CodeTooManyRequests,
	"UNVERIFIED_EMAIL":               CodeEmailNotVerified,
	"CREDENTIAL_TOO_OLD_LOGIN_AGAIN": CodeRequiresRecentLogin,
	"FEDERATED_USER_ID_ALREADY_LINKED": CodeProviderAlreadyLinked,
	"NO_SUCH_PROVIDER":               CodeNoSuchProvider,
	"INVALID_EMAIL":                  CodeInvalidEmail,
	"MISSING_EMAIL":                  CodeInvalidEmail,
	"TOKEN_EXPIRED":                  CodeRequiresRecentLogin,
	"INVALID_ID_TOKEN":               CodeRequiresRecentLogin,
	"USER_NOT_FOUND":                 CodeUserNotFound,
	"EXPIRED_OOB_CODE":               CodeInvalidCredential,
	"INVALID_OOB_CODE":               CodeInvalidCredential,
}

var taxonomy = map[Code]bool{
	CodeInvalidCredential:      true,
	CodeInvalidEmailOrPassword: true,
	CodeEmailAlreadyInUse:      true,
	CodeWeakPassword:           true,
	CodeUserNotFound:           true,
	CodeWrongPassword:          true,
	CodeUserDisabled:           true,
	CodeTooManyRequests:        true,
	CodeEmailNotVerified:       true,
	CodeRequiresRecentLogin:    true,
	CodeProviderAlreadyLinked:  true,
	CodeNoSuchProvider:         true,
	CodeInvalidEmail:           true,
	CodeNetwork:                true,
	CodeUnknown:                true,
	CodeMissingParameter:       true,
}

// FromErrorCode folds an executor-supplied error identifier into the
// taxonomy. Native SDK identifiers, REST API identifiers, and taxonomy
// member names all round-trip; everything else becomes CodeUnknown
// carrying the raw identifier and message.
func FromErrorCode(code, message string) *Error {
	ident := code
	// "WEAK_PASSWORD : Password should be at least 6 characters"
	for i := 0; i < len(ident); i++ {
		if ident[i] == ' ' || ident[i] == ':' {
			ident = ident[:i]
			break
		}
	}
	if c, ok := nativeCodes[ident]; ok {
		return &Error{Code: c, Message: message}
	}
	if c, ok := restCodes[ident]; ok {
		return &Error{Code: c, Message: message}
	}
	if taxonomy[Code(ident)] {
		return &Error{Code: Code(ident), Message: message}
	}
	if message == "" {
		message = code
	}
	return &Error{Code: CodeUnknown, Message: message}
}

// Package auth defines the domain model shared by the bridge and the
// executors: the authenticated user snapshot, the operation catalogue,
// the error taxonomy, and the encoding of both onto bus payloads.
package auth

import "github.com/otiai10/kakehashi/internal/bus"

// Provider identifiers as reported by Firebase.
const (
	ProviderGoogle   = "google.com"
	ProviderApple    = "apple.com"
	ProviderFacebook = "facebook.com"
	ProviderPassword = "password"
)

// User is an immutable snapshot of the authenticated principal.
// Absence of a user is represented by a nil *User, never by a User
// with an empty UID.
type User struct {
	UID           string
	DisplayName   string
	Email         string
	PhotoURL      string
	Anonymous     bool
	EmailVerified bool
	ProviderIDs   []string
}

// Equal reports whether two snapshots are field-for-field identical.
// Provider identifiers are compared as sets.
func (u *User) Equal(other *User) bool {
	if u == nil || other == nil {
		return u == other
	}
	if u.UID != other.UID ||
		u.DisplayName != other.DisplayName ||
		u.Email != other.Email ||
		u.PhotoURL != other.PhotoURL ||
		u.Anonymous != other.Anonymous ||
		u.EmailVerified != other.EmailVerified {
		return false
	}
	if len(u.ProviderIDs) != len(other.ProviderIDs) {
		return false
	}
	seen := make(map[string]int, len(u.ProviderIDs))
	for _, p := range u.ProviderIDs {
		seen[p]++
	}
	for _, p := range other.ProviderIDs {
		seen[p]--
		if seen[p] < 0 {
			return false
		}
	}
	return true
}

// EncodeUser flattens a user snapshot into payload fields.
// A nil user encodes as the signed-out sentinel (empty uid).
func EncodeUser(u *User) bus.Payload {
	if u == nil {
		return bus.Payload{KeyUID: ""}
	}
	return bus.Payload{
		KeyUID:           u.UID,
		KeyEmail:         u.Email,
		KeyDisplayName:   u.DisplayName,
		KeyPhotoURL:      u.PhotoURL,
		KeyIsAnonymous:   u.Anonymous,
		KeyEmailVerified: u.EmailVerified,
		KeyProviderData:  append([]string(nil), u.ProviderIDs...),
	}
}

// DecodeUser reads a user snapshot from payload fields.
// A missing or empty uid means "no current user" and decodes to nil;
// so does a malformed payload, since auth-state broadcasts have no
// caller to report an error to.
func DecodeUser(p bus.Payload) *User {
	uid := getString(p, KeyUID)
	if uid == "" {
		return nil
	}
	return &User{
		UID:           uid,
		DisplayName:   getString(p, KeyDisplayName),
		Email:         getString(p, KeyEmail),
		PhotoURL:      getString(p, KeyPhotoURL),
		Anonymous:     getBool(p, KeyIsAnonymous),
		EmailVerified: getBool(p, KeyEmailVerified),
		ProviderIDs:   getStringSlice(p, KeyProviderData),
	}
}

// getString safely extracts a string field from a payload.
func getString(p bus.Payload, key string) string {
	val, ok := p[key]
	if !ok {
		return ""
	}
	str, ok := val.(string)
	if !ok {
		return ""
	}
	return str
}

// getBool safely extracts a boolean field from a payload.
// String renderings ("true"/"false") are tolerated since payloads may
// cross a boundary that stringifies every value.
func getBool(p bus.Payload, key string) bool {
	val, ok := p[key]
	if !ok {
		return false
	}
	switch v := val.(type) {
	case bool:
		return v
	case string:
		return v == "true"
	}
	return false
}

// getStringSlice safely extracts a list of strings from a payload,
// tolerating []any elements produced by generic JSON decoding.
func getStringSlice(p bus.Payload, key string) []string {
	val, ok := p[key]
	if !ok {
		return nil
	}
	switch v := val.(type) {
	case []string:
		return append([]string(nil), v...)
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

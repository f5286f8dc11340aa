package certificate

import (
	"crypto/rand"
	"fmt"
	"strings"

	"github.com/mr-tron/base58"
	"github.com/wolfeidau/coursecert/internal/auth"
)

// DefaultCourseKey applies when a request names no course.
const DefaultCourseKey = "pe-beginner"

// DefaultFullName is printed when no name can be resolved for the caller.
const DefaultFullName = "Learner"

const tokenBytes = 16

// NewCertID mints "<courseKey>-<token>" where token is 16 random bytes in base58.
func NewCertID(courseKey string) string {
	b := make([]byte, tokenBytes)
	// crypto/rand.Read never returns an error
	_, _ = rand.Read(b)
	return NormalizeCourseKey(courseKey) + "-" + base58.Encode(b)
}

// NormalizeCourseKey lowercases key and reduces it to [a-z0-9-]. Runs of other
// characters collapse into a single dash. An empty result yields DefaultCourseKey.
func NormalizeCourseKey(key string) string {
	var sb strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(key)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			sb.WriteRune(r)
			dash = false
		default:
			if !dash && sb.Len() > 0 {
				sb.WriteByte('-')
				dash = true
			}
		}
	}

	normalized := strings.TrimSuffix(sb.String(), "-")
	if normalized == "" {
		return DefaultCourseKey
	}
	return normalized
}

// ParseCourseKey trims key and checks that it is already in normalized form.
// An empty key yields DefaultCourseKey.
func ParseCourseKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return DefaultCourseKey, nil
	}
	if NormalizeCourseKey(key) != key {
		return "", fmt.Errorf("%w: courseKey %q must contain only a-z, 0-9 and single dashes", ErrValidation, key)
	}
	return key, nil
}

// ResolveFullName picks the printed name: the explicit argument, then the
// account display name, then the local part of the account email, then
// DefaultFullName.
func ResolveFullName(fullName string, identity *auth.Identity) string {
	if name := strings.TrimSpace(fullName); name != "" {
		return name
	}
	if identity != nil {
		if name := strings.TrimSpace(identity.Name); name != "" {
			return name
		}
		if local, _, _ := strings.Cut(strings.TrimSpace(identity.Email), "@"); local != "" {
			return local
		}
	}
	return DefaultFullName
}

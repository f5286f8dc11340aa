package certificate

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/coursecert/internal/auth"
)

func TestNewCertID(t *testing.T) {
	id := NewCertID("pe-beginner")
	require.True(t, strings.HasPrefix(id, "pe-beginner-"))

	token := strings.TrimPrefix(id, "pe-beginner-")
	raw, err := base58.Decode(token)
	require.NoError(t, err)
	require.Len(t, raw, tokenBytes)

	require.NotEqual(t, id, NewCertID("pe-beginner"))
	require.True(t, strings.HasPrefix(NewCertID(""), DefaultCourseKey+"-"))
}

func TestNormalizeCourseKey(t *testing.T) {
	tests := []struct {
		in       string
		expected string
	}{
		{in: "pe-beginner", expected: "pe-beginner"},
		{in: "  PE-Beginner ", expected: "pe-beginner"},
		{in: "PE Advanced!!", expected: "pe-advanced"},
		{in: "rag__101//x", expected: "rag-101-x"},
		{in: "", expected: DefaultCourseKey},
		{in: "***", expected: DefaultCourseKey},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			require.Equal(t, tt.expected, NormalizeCourseKey(tt.in))
		})
	}
}

func TestResolveFullName(t *testing.T) {
	id := uuid.New()

	tests := []struct {
		name     string
		fullName string
		identity *auth.Identity
		expected string
	}{
		{name: "explicit argument", fullName: " Jane Doe ", identity: &auth.Identity{AccountID: id, Name: "Account Name"}, expected: "Jane Doe"},
		{name: "account display name", identity: &auth.Identity{AccountID: id, Name: "Account Name", Email: "jd@example.com"}, expected: "Account Name"},
		{name: "email local part", identity: &auth.Identity{AccountID: id, Email: "jane.doe@example.com"}, expected: "jane.doe"},
		{name: "no profile", identity: &auth.Identity{AccountID: id}, expected: DefaultFullName},
		{name: "blank email", identity: &auth.Identity{AccountID: id, Email: "@example.com"}, expected: DefaultFullName},
		{name: "no identity", expected: DefaultFullName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, ResolveFullName(tt.fullName, tt.identity))
		})
	}
}

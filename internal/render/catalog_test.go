package render

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCatalog_ResolveTitle(t *testing.T) {
	c := DefaultCatalog()

	tests := []struct {
		name        string
		courseTitle string
		courseKey   string
		expected    string
	}{
		{name: "explicit title wins", courseTitle: "  Custom Title ", courseKey: "pe-beginner", expected: "Custom Title"},
		{name: "mapped key", courseKey: "pe-beginner", expected: "Prompt Engineering Fundamentals"},
		{name: "mapped key any case", courseKey: " PE-Advanced ", expected: "Advanced Prompt Engineering"},
		{name: "unmapped key", courseKey: "pe-beginner-extra", expected: DefaultFallbackTitle},
		{name: "empty key", courseKey: "", expected: DefaultFallbackTitle},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, c.ResolveTitle(tt.courseTitle, tt.courseKey))
		})
	}
}

func TestParseCatalog(t *testing.T) {
	c, err := ParseCatalog([]byte(`
fallback: Online Course
courses:
  ml-beginner: Machine Learning Basics
  PE-BEGINNER: Prompting 101
`))
	require.NoError(t, err)

	require.Equal(t, "Machine Learning Basics", c.ResolveTitle("", "ml-beginner"))
	require.Equal(t, "Prompting 101", c.ResolveTitle("", "pe-beginner"))
	require.Equal(t, "Advanced Prompt Engineering", c.ResolveTitle("", "pe-advanced"))
	require.Equal(t, "Online Course", c.ResolveTitle("", "unknown"))
	require.Equal(t, len(defaultCourses)+1, c.Len())

	// defaults are not shared between catalogs
	_, ok := DefaultCatalog().Lookup("ml-beginner")
	require.False(t, ok)
}

func TestParseCatalog_invalid(t *testing.T) {
	_, err := ParseCatalog([]byte("courses: [not, a, map]"))
	require.Error(t, err)

	_, err = ParseCatalog([]byte("courses:\n  pe-beginner: \"\"\n"))
	require.ErrorContains(t, err, "empty key or title")
}

func TestLoadCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "courses.yaml")
	require.NoError(t, os.WriteFile(path, []byte("courses:\n  go-beginner: Go for Beginners\n"), 0o600))

	c, err := LoadCatalog(path)
	require.NoError(t, err)
	title, ok := c.Lookup("go-beginner")
	require.True(t, ok)
	require.Equal(t, "Go for Beginners", title)

	_, err = LoadCatalog(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

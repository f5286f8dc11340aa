package render

import (
	"fmt"
	"maps"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// DefaultFallbackTitle is printed when a course key has no catalog entry.
const DefaultFallbackTitle = "Professional Development Course"

var defaultCourses = map[string]string{
	"pe-beginner":     "Prompt Engineering Fundamentals",
	"pe-intermediate": "Prompt Engineering: Intermediate Techniques",
	"pe-advanced":     "Advanced Prompt Engineering",
	"rag-beginner":    "Retrieval Augmented Generation Essentials",
	"agents-beginner": "Building AI Agents",
}

// Catalog maps course keys to display titles.
type Catalog struct {
	courses  map[string]string
	fallback string
}

type catalogFile struct {
	Fallback string            `yaml:"fallback"`
	Courses  map[string]string `yaml:"courses"`
}

// DefaultCatalog returns the built in course table.
func DefaultCatalog() *Catalog {
	return &Catalog{
		courses:  maps.Clone(defaultCourses),
		fallback: DefaultFallbackTitle,
	}
}

// LoadCatalog reads a YAML course table and merges it over the defaults.
//
//	fallback: Professional Development Course
//	courses:
//	  pe-beginner: Prompt Engineering Fundamentals
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read course catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog parses YAML catalog content, see LoadCatalog.
func ParseCatalog(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse course catalog: %w", err)
	}

	c := DefaultCatalog()
	for key, title := range f.Courses {
		key = normalizeKey(key)
		title = strings.TrimSpace(title)
		if key == "" || title == "" {
			return nil, fmt.Errorf("course catalog entry %q has an empty key or title", key)
		}
		c.courses[key] = title
	}
	if fb := strings.TrimSpace(f.Fallback); fb != "" {
		c.fallback = fb
	}

	return c, nil
}

// Lookup returns the title mapped to courseKey.
func (c *Catalog) Lookup(courseKey string) (string, bool) {
	title, ok := c.courses[normalizeKey(courseKey)]
	return title, ok
}

// Len returns the number of mapped course keys.
func (c *Catalog) Len() int {
	return len(c.courses)
}

// ResolveTitle picks the printed course title: an explicit title wins, then
// the catalog entry for courseKey, then the fallback label.
func (c *Catalog) ResolveTitle(courseTitle, courseKey string) string {
	if t := strings.TrimSpace(courseTitle); t != "" {
		return t
	}

	if title, ok := c.Lookup(courseKey); ok {
		return title
	}

	log.Warn().
		Str("course_key", courseKey).
		Str("fallback", c.fallback).
		Msg("course key missing from catalog, using fallback title")

	return c.fallback
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

package loader

import (
	"path/filepath"
	"strings"
)

// documentCategories is the university's document taxonomy. Files are
// organized on disk under one directory per category; a document outside
// the taxonomy carries no category.
var documentCategories = []string{
	"emploi_temps",
	"reglements",
	"procedures",
	"notes",
	"faqs",
}

// Categories returns the known document categories.
func Categories() []string {
	out := make([]string, len(documentCategories))
	copy(out, documentCategories)
	return out
}

// ValidCategory reports whether name is part of the taxonomy.
func ValidCategory(name string) bool {
	for _, c := range documentCategories {
		if c == name {
			return true
		}
	}
	return false
}

// CategoryFromPath derives a document's category from the directory it
// lives in, or "" when the parent directory is not a known category.
func CategoryFromPath(path string) string {
	parent := strings.ToLower(filepath.Base(filepath.Dir(path)))
	if ValidCategory(parent) {
		return parent
	}
	return ""
}

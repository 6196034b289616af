package judge0

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrUnsupportedLanguage indicates the requested language has no known engine mapping.
var ErrUnsupportedLanguage = errors.New("unsupported language")

// languageIDs maps declared language names to Judge0 CE language identifiers.
var languageIDs = map[string]int{
	"javascript": 63,
	"python":     71,
	"cpp":        54,
	"java":       62,
	"typescript": 74,
	"csharp":     51,
	"ruby":       72,
	"go":         60,
	"rust":       73,
	"swift":      83,
}

// ResolveLanguage maps a declared language name to its Judge0 language identifier.
// Lookup is case-insensitive and ignores surrounding whitespace. Unknown names
// fail closed so no submission runs under a wrong runtime.
func ResolveLanguage(language string) (int, error) {
	id, ok := languageIDs[strings.ToLower(strings.TrimSpace(language))]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedLanguage, language)
	}

	return id, nil
}

// SupportedLanguages returns the known language names in sorted order.
func SupportedLanguages() []string {
	names := make([]string, 0, len(languageIDs))
	for name := range languageIDs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

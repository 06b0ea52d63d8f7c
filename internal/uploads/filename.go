package uploads

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

// SecureFilename reduces a client-supplied name to a safe flat file name:
// compatibility-decomposed to ASCII, path separators turned into spaces,
// whitespace runs joined with "_", every other unsafe character dropped and
// leading/trailing dots and underscores trimmed. The result may be empty.
func SecureFilename(name string) string {
	ascii := transform.Chain(norm.NFKD, runes.Remove(runes.Predicate(func(r rune) bool {
		return r > unicode.MaxASCII
	})))
	name, _, err := transform.String(ascii, name)
	if err != nil {
		return ""
	}

	name = strings.ReplaceAll(name, string(os.PathSeparator), " ")
	name = strings.Join(strings.Fields(name), "_")
	name = unsafeFilenameChars.ReplaceAllString(name, "")
	return strings.Trim(name, "._")
}

// Extension returns the lower-cased extension of name without the dot
func Extension(name string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
}

// lowercaseExt lower-cases only the extension of name
func lowercaseExt(name string) string {
	ext := filepath.Ext(name)
	return strings.TrimSuffix(name, ext) + strings.ToLower(ext)
}

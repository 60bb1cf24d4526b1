package store

import (
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"
)

// isTokenRune reports whether r belongs inside a token. It matches the
// default character classes of the FTS5 unicode61 tokenizer, so text
// tokenized here is tokenized identically by SQLite.
func isTokenRune(r rune) bool {
	if r == utf8.RuneError {
		return false
	}
	return unicode.IsLetter(r) || unicode.IsNumber(r) || unicode.Is(unicode.Co, r)
}

// Tokenize splits text into lowercase word tokens. Anything that is not a
// letter or a digit separates tokens, so "IMG_0042.JPG" becomes
// [img 0042 jpg].
func Tokenize(text string) []string {
	var tokens []string
	start := -1
	for i, r := range text {
		if isTokenRune(r) {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			tokens = append(tokens, strings.ToLower(text[start:i]))
			start = -1
		}
	}
	if start >= 0 {
		tokens = append(tokens, strings.ToLower(text[start:]))
	}
	return tokens
}

// PathTokens tokenizes every segment of a path.
func PathTokens(path string) []string {
	return Tokenize(filepath.ToSlash(path))
}

// ExtensionTokens returns the tokens of the final extension of path, which
// is what "*.jpg" style queries match against.
func ExtensionTokens(path string) []string {
	return Tokenize(filepath.Ext(path))
}

func joinTokens(tokens []string) string {
	return strings.Join(tokens, " ")
}

package validation

import (
	"errors"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	// ErrDangerousMarkup rejects script-like content.
	ErrDangerousMarkup = errors.New("contains potentially dangerous content")
	// ErrSQLPattern rejects SQL keyword sequences in long-form text.
	ErrSQLPattern = errors.New("contains invalid content")
)

var markupPatterns = []string{
	"<script", "</script>", "javascript:", "onload=", "onerror=",
	"onclick=", "onmouseover=", "<iframe", "<object", "<embed",
}

var sqlPatterns = []string{
	"union select", "drop table", "delete from", "insert into",
	"update set", "--", "/*", "*/",
}

// Normalize folds compatibility forms (full-width brackets and the like) so that the
// pattern checks see what a browser would render.
func Normalize(s string) string {
	return norm.NFKC.String(s)
}

// CheckMarkup rejects script injection patterns.
func CheckMarkup(s string) error {
	lower := strings.ToLower(Normalize(s))
	for _, p := range markupPatterns {
		if strings.Contains(lower, p) {
			return ErrDangerousMarkup
		}
	}
	return nil
}

// CheckRichText applies CheckMarkup plus the SQL keyword rules used for long-form text.
func CheckRichText(s string) error {
	if err := CheckMarkup(s); err != nil {
		return err
	}
	lower := strings.Join(strings.Fields(strings.ToLower(Normalize(s))), " ")
	for _, p := range sqlPatterns {
		if strings.Contains(lower, p) {
			return ErrSQLPattern
		}
	}
	return nil
}

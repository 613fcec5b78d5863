package services

import (
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

const maxFreeTextRunes = 1000

var plainTextPolicy = bluemonday.StrictPolicy()

// sanitizeFreeText strips markup from customer or staff supplied text and caps its length.
func sanitizeFreeText(raw string) string {
	cleaned := html.UnescapeString(plainTextPolicy.Sanitize(raw))
	cleaned = strings.Join(strings.Fields(cleaned), " ")
	if utf8.RuneCountInString(cleaned) > maxFreeTextRunes {
		cleaned = string([]rune(cleaned)[:maxFreeTextRunes])
	}
	return cleaned
}

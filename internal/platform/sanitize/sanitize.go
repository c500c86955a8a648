// Package sanitize strips markup from user-supplied free text before it is
// stored or echoed back to browsers.
package sanitize

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var strict = bluemonday.StrictPolicy()

// Text removes every HTML element and attribute, unescapes the entities the
// policy emits, and trims surrounding whitespace. It is idempotent.
func Text(value string) string {
	if value == "" {
		return ""
	}
	cleaned := strict.Sanitize(value)
	return strings.TrimSpace(html.UnescapeString(cleaned))
}

// Package comment holds the rules for carrying an M5 comment into Geotab:
// reading it off an asset, tagging it with date and author, and merging it
// with whatever the device already says.
package comment

import (
	"fmt"
	"strings"
	"time"
)

// Placeholder stands in for an asset without a comment.
const Placeholder = "No comment found for this asset."

// dateLayout renders tag dates as MM/DD/YY.
const dateLayout = "01/02/06"

// FromAsset returns items[0].comments, or Placeholder when the field is
// absent, not a string, or empty. found reports whether a real comment was
// present.
func FromAsset(items []map[string]any) (text string, found bool) {
	if len(items) == 0 {
		return Placeholder, false
	}
	value, ok := items[0]["comments"].(string)
	if !ok || value == "" {
		return Placeholder, false
	}
	return value, true
}

// Tag builds the entry appended to a device comment.
func Tag(now time.Time, user, edited string) string {
	return fmt.Sprintf("[%s: M5 - %s] %s", now.Format(dateLayout), user, strings.TrimSpace(edited))
}

// Merge combines the existing device comment with entry. In append mode the
// two are joined by one newline when existing already ends in one, two
// otherwise, and the result is trimmed. Without append the entry replaces
// the existing text.
func Merge(existing, entry string, appendMode bool) string {
	if !appendMode {
		return entry
	}
	separator := "\n\n"
	if strings.HasSuffix(existing, "\n") {
		separator = "\n"
	}
	return strings.TrimSpace(existing + separator + entry)
}

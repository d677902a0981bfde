// Package templating fills campaign message templates with recipient
// attributes.
package templating

import (
	"strconv"
	"strings"

	"github.com/LeventeLantos/outreach-engine/internal/model"
)

// Resolve substitutes every placeholder occurrence in tmpl. Attributes the
// recipient does not carry resolve to the empty string.
func Resolve(tmpl string, r model.Recipient) string {
	return strings.NewReplacer(
		"{name}", r.Name,
		"{username}", r.Username,
		"{url}", r.URL,
		"{bio}", r.Bio,
		"{followers}", formatCount(r.Followers),
		"{following}", formatCount(r.Following),
	).Replace(tmpl)
}

func formatCount(n *int) string {
	if n == nil {
		return ""
	}
	return strconv.Itoa(*n)
}

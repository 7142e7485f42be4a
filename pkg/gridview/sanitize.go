package gridview

import (
	"fmt"
	"html"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

var (
	textPolicyOnce sync.Once
	textPolicy     *bluemonday.Policy

	linkPolicyOnce sync.Once
	linkPolicy     *bluemonday.Policy
)

// textHTML turns cell text into markup. Tags are stripped and line breaks kept.
func textHTML(raw string) string {
	if raw == "" {
		return ""
	}
	cleaned := textSanitizer().Sanitize(raw)
	return strings.ReplaceAll(cleaned, "\n", "<br/>")
}

// linkHTML renders an anchor for a link cell. Hrefs outside http, https and
// mailto are dropped.
func linkHTML(text, href string) string {
	markup := fmt.Sprintf(`<a href="%s">%s</a>`, html.EscapeString(href), html.EscapeString(text))
	return strings.TrimSpace(linkSanitizer().Sanitize(markup))
}

func textSanitizer() *bluemonday.Policy {
	textPolicyOnce.Do(func() {
		textPolicy = bluemonday.StrictPolicy()
	})
	return textPolicy
}

func linkSanitizer() *bluemonday.Policy {
	linkPolicyOnce.Do(func() {
		policy := bluemonday.NewPolicy()
		policy.AllowAttrs("href").OnElements("a")
		policy.AllowStandardURLs()
		policy.AddTargetBlankToFullyQualifiedLinks(true)
		linkPolicy = policy
	})
	return linkPolicy
}

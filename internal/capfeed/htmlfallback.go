package capfeed

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	fetchXMLLinkRe = regexp.MustCompile(`href=["']([^"']*FetchXMLFile[^"']*identifier[^"']*)["']`)
	inlineAlertRe  = regexp.MustCompile(`(?s)<alert[^>]*>.*?</alert>`)
)

// extractHTMLFallback scrapes a human-facing HTML page for either a
// FetchXMLFile?identifier=... link to re-fetch, or an inline <alert>...
// </alert> block to parse directly (spec.md §4.2/§6). This is a
// best-effort, publisher-specific heuristic: a page that matches neither
// pattern simply yields no fallback content, same as any other publisher
// not covered by this regex.
func extractHTMLFallback(html string) (xmlLinkURL, inlineXML string) {
	if m := fetchXMLLinkRe.FindStringSubmatch(html); m != nil {
		return m[1], ""
	}
	if m := inlineAlertRe.FindString(html); m != "" {
		return "", m
	}
	// fall back to a DOM walk in case the raw regex missed an
	// attribute-order variant goquery can still find by tag/attr.
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", ""
	}
	var found string
	doc.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, _ := s.Attr("href")
		if strings.Contains(href, "FetchXMLFile") && strings.Contains(href, "identifier") {
			found = href
			return false
		}
		return true
	})
	return found, ""
}

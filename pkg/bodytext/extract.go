package bodytext

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
)

var (
	sanitizer = bluemonday.StrictPolicy()

	// Attribution line starting a quoted reply, e.g. "On Tue, Jan 2 ... wrote:".
	onWrotePattern = regexp.MustCompile(`^On .{0,200}wrote:`)
	// "-----Original Message-----" and similar separators.
	originalMessagePattern = regexp.MustCompile(`^-{2,}\s*(Original Message|Forwarded message)\s*-{2,}$`)
	htmlTagPattern         = regexp.MustCompile(`<[a-zA-Z!/][^>]*>`)
)

// Clean converts a raw message body to plain text suitable for downstream
// classification and style learning: HTML stripped, quoted history removed,
// whitespace collapsed. Returns "" when nothing usable remains.
func Clean(body string) string {
	text := body
	if looksLikeHTML(text) {
		text = ExtractPlainText(text)
	}
	text = StripQuotedReply(text)
	return strings.TrimSpace(text)
}

func looksLikeHTML(s string) bool {
	return htmlTagPattern.MatchString(s)
}

// ExtractPlainText renders HTML down to text. Script and style contents are
// dropped before extraction so they never leak into the body.
func ExtractPlainText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		// Fall back to tag sanitizing when the markup is unparseable.
		return sanitizer.Sanitize(html)
	}
	doc.Find("script, style, head").Remove()
	// Keep block boundaries as line breaks so quote stripping still sees lines.
	doc.Find("br").Each(func(_ int, s *goquery.Selection) {
		s.ReplaceWithHtml("\n")
	})
	doc.Find("p, div, tr, li, blockquote").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml("\n")
	})
	return doc.Text()
}

// StripQuotedReply removes quoted history from a plain-text body:
// "On ... wrote:" attribution lines, "Original Message" separators, and any
// ">"-prefixed quote lines. Unquoted content around them is kept, so both
// top-posted and bottom-posted replies survive.
func StripQuotedReply(text string) string {
	lines := strings.Split(text, "\n")
	kept := make([]string, 0, len(lines))

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if onWrotePattern.MatchString(trimmed) || originalMessagePattern.MatchString(trimmed) {
			continue
		}
		if strings.HasPrefix(trimmed, ">") {
			continue
		}
		kept = append(kept, line)
	}

	out := strings.Join(kept, "\n")
	out = collapseBlankLines(out)
	return strings.TrimSpace(out)
}

func collapseBlankLines(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			if blank {
				continue
			}
			blank = true
			out = append(out, "")
			continue
		}
		blank = false
		out = append(out, strings.TrimRight(line, " \t"))
	}
	return strings.Join(out, "\n")
}

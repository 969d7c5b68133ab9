package email

import (
	"regexp"
	"strings"
)

var (
	scriptBlockPattern = regexp.MustCompile(`(?is)<script\b[^>]*>.*?</script\s*>`)
	styleBlockPattern  = regexp.MustCompile(`(?is)<style\b[^>]*>.*?</style\s*>`)
	breakPattern       = regexp.MustCompile(`(?i)<br\s*/?>`)
	paragraphPattern   = regexp.MustCompile(`(?i)</p\s*>`)
	blockClosePattern  = regexp.MustCompile(`(?i)</(?:h[1-6]|div|li|ul|ol|tr|table|blockquote)\s*>`)
	tagPattern         = regexp.MustCompile(`<[^>]+>`)
	blankRunPattern    = regexp.MustCompile(`\n\s+\n`)
	spaceRunPattern    = regexp.MustCompile(`[ \t]{2,}`)
)

var entityReplacer = strings.NewReplacer(
	"&nbsp;", " ",
	"&amp;", "&",
	"&lt;", "<",
	"&gt;", ">",
)

// StripTags converts rendered HTML into a small plain-text fallback for the
// text/plain alternative part. It is deliberately crude: scripts and styles
// are dropped, breaks and block-element ends become newlines, remaining tags and
// basic entities are removed. Anything fancier belongs in a real template.
func StripTags(html string) string {
	text := scriptBlockPattern.ReplaceAllString(html, "")
	text = styleBlockPattern.ReplaceAllString(text, "")
	text = breakPattern.ReplaceAllString(text, "\n")
	text = paragraphPattern.ReplaceAllString(text, "\n\n")
	text = blockClosePattern.ReplaceAllString(text, "\n")
	text = tagPattern.ReplaceAllString(text, "")
	text = entityReplacer.Replace(text)
	text = blankRunPattern.ReplaceAllString(text, "\n\n")
	text = spaceRunPattern.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

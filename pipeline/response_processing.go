package pipeline

import (
	"regexp"
	"strings"
)

var (
	assistantPrefix = regexp.MustCompile(`(?i)^\s*assistant:\s*`)
	thinkingBlock   = regexp.MustCompile(`(?s)<thinking>(.*?)</thinking>`)
)

// CleanResponseText normalizes a model's final text: some models echo an
// "assistant:" role prefix, and some wrap reasoning in <thinking> tags.
// The prefix is dropped, the thinking blocks are extracted and returned
// separately.
func CleanResponseText(text string) (clean, thinking string) {
	clean = assistantPrefix.ReplaceAllString(text, "")

	matches := thinkingBlock.FindAllStringSubmatch(clean, -1)
	if len(matches) > 0 {
		var parts []string
		for _, m := range matches {
			if t := strings.TrimSpace(m[1]); t != "" {
				parts = append(parts, t)
			}
		}
		thinking = strings.Join(parts, "\n\n")
		clean = thinkingBlock.ReplaceAllString(clean, "")
	}

	return strings.TrimSpace(clean), thinking
}

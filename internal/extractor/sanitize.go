package extractor

import "regexp"

// Phrases that tend to show up in attempts to smuggle instructions into
// the extraction prompt. Matches are logged and stripped before the
// message reaches the model; the rest of the message is still processed.
var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ignore\s+(previous|all|above|earlier)\s+instructions?`),
	regexp.MustCompile(`(?i)disregard\s+(previous|all|above|earlier)\s+(instructions?|prompts?)`),
	regexp.MustCompile(`(?i)forget\s+(previous|all|above|earlier)\s+(instructions?|commands?)`),
	regexp.MustCompile(`(?i)system\s*:\s*`),
	regexp.MustCompile(`(?i)<\s*system\s*>`),
	regexp.MustCompile(`(?i)you\s+are\s+now\s+(a|an)\s+`),
	regexp.MustCompile(`(?i)act\s+as\s+(a|an)\s+`),
	regexp.MustCompile(`(?i)pretend\s+(to\s+be|you\s+are)`),
	regexp.MustCompile(`(?i)roleplay\s+as`),
	regexp.MustCompile(`(?i)new\s+instructions?`),
	regexp.MustCompile(`(?i)override\s+(previous|all|above)\s+`),
}

// Sanitize strips instruction-injection phrases from a user message and
// returns the cleaned text plus the patterns that matched. An empty slice
// means the input was clean and is returned unchanged.
func Sanitize(input string) (string, []string) {
	var matched []string
	cleaned := input
	for _, pat := range injectionPatterns {
		if pat.MatchString(cleaned) {
			matched = append(matched, pat.String())
			cleaned = pat.ReplaceAllString(cleaned, "")
		}
	}
	return cleaned, matched
}

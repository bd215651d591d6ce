package compress

import (
	"regexp"
	"strings"

	"github.com/rcliao/agent-gateway/internal/model"
)

var (
	reFileRef = regexp.MustCompile(`[\w./-]+\.[A-Za-z]{1,5}:\d+`)
	reCamel   = regexp.MustCompile(`\b[A-Z][a-z0-9]+(?:[A-Z][a-z0-9]*)+\b`)
	reSnake   = regexp.MustCompile(`\b[a-z][a-z0-9]*_[a-z0-9_]+\b`)
	reFunc    = regexp.MustCompile(`\b\w+\(\)`)
	reNumber  = regexp.MustCompile(`\b\d+(?:\.\d+)?%?`)
	reWord    = regexp.MustCompile(`\b[A-Z][a-z]+\b`)
	reAdvice  = regexp.MustCompile(`(?i)(?:should|recommend|suggest|consider|let's)\s+([^.!?\n]+)`)
	reQuoted  = regexp.MustCompile("[\"'`]([^\"'`\n]{2,60})[\"'`]")
)

// nameStopwords are capitalized words that are grammar, not names.
var nameStopwords = map[string]bool{
	"The": true, "This": true, "That": true, "There": true, "Then": true,
	"A": true, "An": true, "And": true, "But": true, "Or": true,
	"I": true, "It": true, "If": true, "In": true, "On": true, "At": true,
	"We": true, "You": true, "He": true, "She": true, "They": true,
	"What": true, "When": true, "Where": true, "Why": true, "How": true,
	"Is": true, "Are": true, "Was": true, "Do": true, "Does": true,
	"Can": true, "Could": true, "Please": true, "Build": true,
}

// ExtractAnchors pulls the reconstructable reference points out of a
// message: proper names, numbers, suggested actions and code symbols.
func ExtractAnchors(text string) model.Anchors {
	var a model.Anchors

	symbols := append([]string{}, reFileRef.FindAllString(text, -1)...)
	symbols = append(symbols, reCamel.FindAllString(text, -1)...)
	symbols = append(symbols, reSnake.FindAllString(text, -1)...)
	symbols = append(symbols, reFunc.FindAllString(text, -1)...)
	a.Symbols = dedup(symbols)

	symbolSet := make(map[string]bool, len(a.Symbols))
	for _, s := range a.Symbols {
		symbolSet[s] = true
	}

	var names []string
	for _, w := range reWord.FindAllString(text, -1) {
		if nameStopwords[w] || symbolSet[w] {
			continue
		}
		names = append(names, w)
	}
	a.Names = dedup(names)

	a.Numbers = dedup(reNumber.FindAllString(text, -1))

	for _, m := range reAdvice.FindAllStringSubmatch(text, -1) {
		s := strings.TrimSpace(m[1])
		if s == "" {
			continue
		}
		if len(s) > 80 {
			s = s[:80]
		}
		a.Suggestions = append(a.Suggestions, s)
	}
	a.Suggestions = dedup(a.Suggestions)

	return a
}

// Count returns the total number of extracted anchors.
func Count(a model.Anchors) int {
	return len(a.Names) + len(a.Numbers) + len(a.Suggestions) + len(a.Symbols)
}

func dedup(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(in))
	var out []string
	for _, s := range in {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

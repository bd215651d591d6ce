// Package compress turns raw transcript messages into compact,
// reconstructable keyframes. Everything here is pure: no I/O, and
// deterministic output for a fixed input and configuration.
package compress

import (
	"strings"

	"github.com/rcliao/agent-gateway/internal/model"
)

// typeOrder is the tie-break order: issue and decision hints win ties
// against the softer categories.
var typeOrder = []model.ContentType{
	model.ContentIssue,
	model.ContentDecision,
	model.ContentQuestion,
	model.ContentTask,
	model.ContentSuggestion,
	model.ContentPreference,
	model.ContentFact,
}

// Hints must not overlap as substrings ("fail" already matches "failed"
// and "fails"); Classify counts raw occurrences, so an overlapping pair
// would double-count one word and defeat the tie-break order.
var typeHints = map[model.ContentType][]string{
	model.ContentIssue: {
		"error", "fail", "broken", "bug", "crash",
		"exception", "panic", "not working", "doesn't work", "wrong",
	},
	model.ContentDecision: {
		"decide", "we will", "let's go with", "going with",
		"chose", "agreed", "final answer", "settled on",
	},
	model.ContentQuestion: {
		"?", "how do", "what is", "why does", "where is", "can you",
		"could you", "is there",
	},
	model.ContentTask: {
		"todo", "need to", "have to", "must", "implement", "remind me",
		"deploy", "schedule", "set up",
	},
	model.ContentSuggestion: {
		"should", "recommend", "suggest", "consider", "how about",
		"what if", "maybe try",
	},
	model.ContentPreference: {
		"prefer", "i like", "i love", "i hate", "favorite", "rather than",
		"always use", "never use",
	},
	model.ContentFact: {
		"is located", "consists of", "means", "is called", "was built",
		"contains", "runs on",
	},
}

// Classify scores the text against each content type's hints and
// returns the best match, defaulting to narrative when nothing fires.
func Classify(text string) model.ContentType {
	lower := strings.ToLower(text)

	best := model.ContentNarrative
	bestScore := 0
	for _, ct := range typeOrder {
		score := 0
		for _, hint := range typeHints[ct] {
			score += strings.Count(lower, hint)
		}
		if score > bestScore {
			best = ct
			bestScore = score
		}
	}
	return best
}

package compress

import (
	"regexp"
	"sort"
	"strings"

	"github.com/rcliao/agent-gateway/internal/model"
)

const (
	// DefaultMaxMemories caps how many keyframes one run yields.
	DefaultMaxMemories = 10
	// DefaultMinImportance is the selection threshold.
	DefaultMinImportance = 0.5
	// fallbackCount is how many top-scored messages survive when
	// nothing clears the threshold.
	fallbackCount = 3

	coreMaxLen = 120
	maxKeywords = 8
)

// Options configures a compression run.
type Options struct {
	MaxMemories   int
	MinImportance float64
}

// DefaultOptions returns the standard compression tuning.
func DefaultOptions() Options {
	return Options{MaxMemories: DefaultMaxMemories, MinImportance: DefaultMinImportance}
}

var urgencyWords = []string{
	"urgent", "asap", "critical", "blocker", "immediately", "right now",
	"important", "emergency",
}

var typeWeights = map[model.ContentType]float64{
	model.ContentIssue:      0.30,
	model.ContentDecision:   0.30,
	model.ContentTask:       0.25,
	model.ContentPreference: 0.25,
	model.ContentQuestion:   0.20,
	model.ContentSuggestion: 0.20,
	model.ContentFact:       0.15,
	model.ContentNarrative:  0.05,
}

type scored struct {
	index      int
	msg        model.Message
	ctype      model.ContentType
	anchors    model.Anchors
	importance float64
}

// Compress scores every message, keeps the ones that matter, and emits
// them as chronological keyframes with 1-based sequence numbers. When
// no message clears MinImportance the top scorers survive anyway, so a
// run over a non-empty transcript is never empty.
func Compress(messages []model.Message, opts Options) []model.Keyframe {
	if opts.MaxMemories <= 0 {
		opts.MaxMemories = DefaultMaxMemories
	}
	// MinImportance zero is a legitimate "keep everything" threshold;
	// only negatives are clamped. DefaultOptions supplies the 0.5.
	if opts.MinImportance < 0 {
		opts.MinImportance = 0
	}

	all := make([]scored, 0, len(messages))
	for i, msg := range messages {
		ctype := Classify(msg.Content)
		anchors := ExtractAnchors(msg.Content)
		all = append(all, scored{
			index:      i,
			msg:        msg,
			ctype:      ctype,
			anchors:    anchors,
			importance: scoreMessage(msg, ctype, anchors),
		})
	}

	var selected []scored
	for _, s := range all {
		if s.importance >= opts.MinImportance {
			selected = append(selected, s)
		}
	}
	if len(selected) == 0 && len(all) > 0 {
		byScore := append([]scored(nil), all...)
		sortByScore(byScore)
		n := fallbackCount
		if n > len(byScore) {
			n = len(byScore)
		}
		selected = byScore[:n]
	}
	if len(selected) > opts.MaxMemories {
		sortByScore(selected)
		selected = selected[:opts.MaxMemories]
	}

	// Back into chronological order for sequence assignment.
	sort.Slice(selected, func(i, j int) bool { return selected[i].index < selected[j].index })

	frames := make([]model.Keyframe, 0, len(selected))
	for seq, s := range selected {
		frames = append(frames, model.Keyframe{
			Sequence:     seq + 1,
			MessageIndex: s.index,
			Role:         s.msg.Role,
			ContentType:  s.ctype,
			Strategy:     strategyFor(s.anchors),
			Importance:   s.importance,
			Core:         coreOf(s.msg.Content),
			Details:      detailsOf(s.msg.Content, s.anchors),
			Keywords:     keywordsOf(s.msg.Content),
			Anchors:      s.anchors,
		})
	}
	return frames
}

// sortByScore orders by importance descending, original position as the
// deterministic tie-break.
func sortByScore(s []scored) {
	sort.Slice(s, func(i, j int) bool {
		if s[i].importance != s[j].importance {
			return s[i].importance > s[j].importance
		}
		return s[i].index < s[j].index
	})
}

func scoreMessage(msg model.Message, ctype model.ContentType, anchors model.Anchors) float64 {
	score := 0.0

	switch msg.Role {
	case model.RoleUser:
		score += 0.30
	case model.RoleAssistant:
		score += 0.20
	}

	score += typeWeights[ctype]

	density := 0.05 * float64(Count(anchors))
	if density > 0.20 {
		density = 0.20
	}
	score += density

	lower := strings.ToLower(msg.Content)
	for _, w := range urgencyWords {
		if strings.Contains(lower, w) {
			score += 0.15
			break
		}
	}

	switch n := len(msg.Content); {
	case n >= 200:
		score += 0.10
	case n < 20:
		score -= 0.10
	}

	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

func strategyFor(anchors model.Anchors) string {
	if anchors.Empty() {
		return "digest"
	}
	return "anchor"
}

// reSentenceEnd matches terminators followed by whitespace, so dots
// inside symbols like a.ts:10 do not cut the core short.
var reSentenceEnd = regexp.MustCompile(`[.!?]\s`)

// coreOf keeps the first sentence, truncated to coreMaxLen.
func coreOf(text string) string {
	text = strings.TrimSpace(text)
	if loc := reSentenceEnd.FindStringIndex(text); loc != nil && loc[0] >= 15 {
		text = strings.TrimSpace(text[:loc[0]+1])
	}
	if len(text) > coreMaxLen {
		text = text[:coreMaxLen]
	}
	return text
}

// detailsOf collects the literal fragments a reader needs to
// reconstruct specifics: file:line references, call sites and quoted
// strings.
func detailsOf(text string, anchors model.Anchors) []string {
	var details []string
	for _, s := range anchors.Symbols {
		if strings.ContainsRune(s, ':') || strings.HasSuffix(s, "()") {
			details = append(details, s)
		}
	}
	for _, q := range reQuoted.FindAllStringSubmatch(text, -1) {
		details = append(details, q[1])
	}
	return dedup(details)
}

func keywordsOf(text string) []string {
	var words []string
	for _, w := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	}) {
		if len(w) <= 3 || keywordStopwords[w] {
			continue
		}
		words = append(words, w)
		if len(words) == maxKeywords*2 {
			break
		}
	}
	words = dedup(words)
	if len(words) > maxKeywords {
		words = words[:maxKeywords]
	}
	return words
}

var keywordStopwords = map[string]bool{
	"this": true, "that": true, "with": true, "from": true, "have": true,
	"what": true, "when": true, "where": true, "which": true, "will": true,
	"would": true, "could": true, "should": true, "about": true,
	"there": true, "their": true, "because": true, "into": true,
	"just": true, "like": true, "been": true, "being": true, "very": true,
}

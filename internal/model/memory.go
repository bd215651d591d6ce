package model

import "time"

// Long-term record schema tags. Downstream consumers key their decoding
// off this tag so either side can evolve independently.
const (
	SchemaArchiveV1  = "memory.archive.v1"
	SchemaKeyframeV1 = "memory.keyframe.v1"
)

// LongTermRecord is a durable archival record. Created only by the
// archiver or the keyframe extractor; immutable except for metadata
// enrichment.
type LongTermRecord struct {
	ID         string            `json:"id"`
	Schema     string            `json:"schema"`
	Content    string            `json:"content"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Importance float64           `json:"importance"`
	Tags       []string          `json:"tags,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

// ContentType classifies what a message is about.
type ContentType string

const (
	ContentQuestion   ContentType = "question"
	ContentIssue      ContentType = "issue"
	ContentDecision   ContentType = "decision"
	ContentTask       ContentType = "task"
	ContentSuggestion ContentType = "suggestion"
	ContentPreference ContentType = "preference"
	ContentFact       ContentType = "fact"
	ContentNarrative  ContentType = "narrative"
)

// Anchors are the reconstructable reference points extracted from a
// message: proper names, numeric values, suggested actions and code-like
// symbols.
type Anchors struct {
	Names       []string `json:"names,omitempty"`
	Numbers     []string `json:"numbers,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
	Symbols     []string `json:"symbols,omitempty"`
}

// Empty reports whether no anchors were extracted.
func (a Anchors) Empty() bool {
	return len(a.Names) == 0 && len(a.Numbers) == 0 && len(a.Suggestions) == 0 && len(a.Symbols) == 0
}

// Keyframe is the compressed representation of one transcript message.
// Keyframes are derived data, regenerable from the transcript at any
// time; Sequence is 1-based within a compression run.
type Keyframe struct {
	Sequence     int         `json:"sequence"`
	MessageIndex int         `json:"message_index"`
	Role         string      `json:"role"`
	ContentType  ContentType `json:"content_type"`
	Strategy     string      `json:"strategy"`
	Importance   float64     `json:"importance"`
	Core         string      `json:"core"`
	Details      []string    `json:"details,omitempty"`
	Keywords     []string    `json:"keywords,omitempty"`
	Anchors      Anchors     `json:"anchors"`
}

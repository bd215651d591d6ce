package session

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"github.com/rcliao/agent-gateway/internal/model"
)

// transcripts can carry large pasted content on a single line
const maxLineSize = 4 * 1024 * 1024

// ReadMessages re-parses a transcript into its ordered messages.
// Non-message records and unparseable lines are skipped; a missing file
// is empty history, not an error.
func ReadMessages(path string) ([]model.Message, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open transcript: %w", err)
	}
	defer f.Close()

	var messages []model.Message
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec model.TranscriptRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			continue
		}
		if rec.Type != model.RecordMessage || rec.Message == nil {
			continue
		}
		msg := *rec.Message
		if msg.Timestamp.IsZero() {
			msg.Timestamp = rec.Timestamp
		}
		messages = append(messages, msg)
	}
	if err := scanner.Err(); err != nil {
		return messages, fmt.Errorf("scan transcript: %w", err)
	}
	return messages, nil
}

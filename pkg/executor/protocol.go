package executor

import (
	"bytes"
	"encoding/json"
)

// progressPrefix marks a structured status line in a plugin's combined PTY
// stream (spec §6).
var progressPrefix = []byte("PROGRESS:")

// progressFrame mirrors the JSON object documented in spec §6. Every field
// is optional, and an empty Type is read as "progress". Percent's zero
// value is indistinguishable from "absent", so the byte/item counters
// (and Success) are pointers that tell absent apart from zero.
type progressFrame struct {
	Type            string  `json:"type"`
	Phase           string  `json:"phase"`
	Percent         float64 `json:"percent"`
	Message         string  `json:"message"`
	BytesDownloaded *int64  `json:"bytes_downloaded"`
	BytesTotal      *int64  `json:"bytes_total"`
	ItemsCompleted  *int64  `json:"items_completed"`
	ItemsTotal      *int64  `json:"items_total"`
	Success         *bool   `json:"success"`
	Error           string  `json:"error"`
}

// parseProgressLine reports whether line is a structured PROGRESS: frame
// and, if so, decodes it.
func parseProgressLine(line []byte) (progressFrame, bool) {
	trimmed := bytes.TrimSpace(line)
	if !bytes.HasPrefix(trimmed, progressPrefix) {
		return progressFrame{}, false
	}
	body := bytes.TrimSpace(trimmed[len(progressPrefix):])
	var f progressFrame
	if err := json.Unmarshal(body, &f); err != nil {
		return progressFrame{}, false
	}
	if f.Type == "" {
		f.Type = "progress"
	}
	return f, true
}

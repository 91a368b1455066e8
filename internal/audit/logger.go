// Package audit writes the per-turn forensic trail of a council session.
// Audit files record exactly what was sent to and received from the advisors; they are
// never read back.
package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"

	"aicouncil/internal/logger"
	"aicouncil/pkg/counciltypes"
)

// DefaultDir is the audit directory used when none is configured.
const DefaultDir = "logs"

// Entry is one advisor's raw outcome within a turn.
type Entry struct {
	Advisor  string  `json:"advisor"`
	Response string  `json:"response"`
	Cost     float64 `json:"cost"`
	Error    bool    `json:"error,omitempty"`
}

// Record is the content of one audit file.
type Record struct {
	Turn      int     `json:"turn"`
	Prompt    string  `json:"prompt_sent_to_council"`
	Responses []Entry `json:"raw_council_responses"`
}

// NewRecord builds the audit record of a turn from the advisor results, in the order given.
func NewRecord(turn int, prompt string, results []counciltypes.AdvisorResult) Record {
	entries := make([]Entry, 0, len(results))
	for _, result := range results {
		entries = append(entries, Entry{
			Advisor:  result.Advisor,
			Response: result.Response,
			Cost:     result.CostUSD,
			Error:    result.Failed,
		})
	}
	return Record{Turn: turn, Prompt: prompt, Responses: entries}
}

// Logger writes audit records under Dir.
type Logger struct {
	Dir string

	log *log.Logger
}

// NewLogger creates a logger writing to dir, or DefaultDir when dir is empty.
func NewLogger(dir string) *Logger {
	if dir == "" {
		dir = DefaultDir
	}
	return &Logger{Dir: dir, log: logger.NewStyledLogger("Audit")}
}

// Path returns the file path of the record for turn.
func (l *Logger) Path(turn int) string {
	return filepath.Join(l.Dir, fmt.Sprintf("turn_%03d_log.json", turn))
}

// Log writes record to its turn file, creating the directory if needed.
// An existing file for the same turn is overwritten.
func (l *Logger) Log(record Record) error {
	if err := os.MkdirAll(l.Dir, 0755); err != nil {
		return fmt.Errorf("failed to create audit directory: %w", err)
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode audit record: %w", err)
	}

	path := l.Path(record.Turn)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write audit record %s: %w", path, err)
	}

	if l.log != nil {
		l.log.Debug("Audit record written", "turn", record.Turn, "path", path, "responses", len(record.Responses))
	}
	return nil
}

// Package session persists council sessions: crash-resumable state written after every
// turn, and the Markdown transcript exported when the session ends.
package session

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"

	"aicouncil/internal/logger"
	"aicouncil/pkg/counciltypes"
)

const (
	// DefaultStateFile is the session file used when none is configured.
	DefaultStateFile = "session_state.json"
	// DefaultOutputDir receives exported transcripts.
	DefaultOutputDir = "output"

	stateFileMode = 0o600
)

// ErrInvalidState is returned when a persisted session does not decode or validate.
var ErrInvalidState = errors.New("invalid session state")

// stateKeys are the keys every persisted session must carry.
var stateKeys = []string{
	"running",
	"selected_models",
	"rapporteur_model_id",
	"council_histories",
	"session_log",
	"total_session_cost",
	"turn_counter",
	"last_rapporteur_report",
	"output_filename",
	"last_user_input",
}

// Store loads, saves and finalizes the session kept at Path.
type Store struct {
	Path      string
	OutputDir string

	now func() time.Time
	log *log.Logger
}

// NewStore creates a store. Empty arguments select the defaults.
func NewStore(path, outputDir string) *Store {
	if path == "" {
		path = DefaultStateFile
	}
	if outputDir == "" {
		outputDir = DefaultOutputDir
	}
	return &Store{
		Path:      path,
		OutputDir: outputDir,
		now:       time.Now,
		log:       logger.NewStyledLogger("Session"),
	}
}

// Exists reports whether a saved session is present.
func (s *Store) Exists() bool {
	_, err := os.Stat(s.Path)
	return err == nil
}

// LoadOrCreate returns the saved session when one exists and the prompter agrees to
// resume it, and a fresh session otherwise. A declined or unreadable session file is
// removed. It never fails: the worst outcome is a fresh session.
func (s *Store) LoadOrCreate(prompter counciltypes.ResumePrompter) *counciltypes.SessionState {
	if !s.Exists() {
		return counciltypes.NewSessionState()
	}

	if !prompter.ConfirmResume() {
		s.log.Info("Discarding previous session", "path", s.Path)
		s.remove()
		return counciltypes.NewSessionState()
	}

	state, err := s.Peek()
	if err != nil {
		s.log.Warn("Could not read session file, starting a new session", "path", s.Path, "error", err)
		s.remove()
		return counciltypes.NewSessionState()
	}

	s.log.Info("Resuming previous session", "turn", state.TurnCounter)
	return state
}

// Peek reads and validates the saved session without prompting.
func (s *Store) Peek() (*counciltypes.SessionState, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, err
	}
	return Decode(data)
}

// Save writes state atomically: the encoded state goes to a temporary file in the same
// directory, is flushed to disk and then renamed over the session file.
func (s *Store) Save(state *counciltypes.SessionState) error {
	data, err := Encode(state)
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create session directory: %w", err)
	}

	tempFile, err := os.CreateTemp(dir, "."+filepath.Base(s.Path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp session file: %w", err)
	}

	tempName := tempFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tempName)
		}
	}()

	if _, err := tempFile.Write(data); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("write temp session file: %w", err)
	}

	if err := tempFile.Chmod(stateFileMode); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("chmod temp session file: %w", err)
	}

	if err := tempFile.Sync(); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("sync temp session file: %w", err)
	}

	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("close temp session file: %w", err)
	}

	if err := os.Rename(tempName, s.Path); err != nil {
		return fmt.Errorf("replace session file: %w", err)
	}

	cleanup = false
	s.log.Debug("Session saved", "path", s.Path, "turn", state.TurnCounter)
	return nil
}

// Finalize exports the transcript when at least one turn was completed, then removes
// the session file. It returns the transcript path, or "" when none was written.
func (s *Store) Finalize(state *counciltypes.SessionState) (string, error) {
	var transcriptPath string

	if len(state.SessionLog) > 0 {
		content, err := RenderTranscript(state, s.now())
		if err != nil {
			return "", err
		}

		if err := os.MkdirAll(s.OutputDir, 0o755); err != nil {
			return "", fmt.Errorf("create output directory: %w", err)
		}

		filename := state.OutputFilename
		if filename == "" {
			filename = counciltypes.DefaultOutputFilename
		}
		transcriptPath = filepath.Join(s.OutputDir, filename)
		if err := os.WriteFile(transcriptPath, content, 0o644); err != nil {
			return "", fmt.Errorf("write transcript: %w", err)
		}
		s.log.Info("Transcript exported", "path", transcriptPath)
	}

	if err := os.Remove(s.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return transcriptPath, fmt.Errorf("remove session file: %w", err)
	}
	return transcriptPath, nil
}

func (s *Store) remove() {
	if err := os.Remove(s.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.log.Warn("Could not remove session file", "path", s.Path, "error", err)
	}
}

// Encode serializes state deterministically: struct field order, sorted map keys and
// two-space indentation.
func Encode(state *counciltypes.SessionState) ([]byte, error) {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(state); err != nil {
		return nil, fmt.Errorf("encode session state: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode parses and validates a persisted session. Every failure wraps ErrInvalidState.
func Decode(data []byte) (*counciltypes.SessionState, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	for _, key := range stateKeys {
		if _, ok := fields[key]; !ok {
			return nil, fmt.Errorf("%w: missing key %q", ErrInvalidState, key)
		}
	}

	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()

	var state counciltypes.SessionState
	if err := decoder.Decode(&state); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidState, err)
	}

	if state.SelectedModels == nil {
		state.SelectedModels = make(map[string]string)
	}
	if state.CouncilHistories == nil {
		state.CouncilHistories = make(map[string][]counciltypes.Message)
	}
	if state.SessionLog == nil {
		state.SessionLog = []counciltypes.TurnRecord{}
	}

	if err := Validate(&state); err != nil {
		return nil, err
	}
	return &state, nil
}

// Validate checks the invariants of a session state.
func Validate(state *counciltypes.SessionState) error {
	if state.TurnCounter < 1 {
		return fmt.Errorf("%w: turn_counter must be at least 1, got %d", ErrInvalidState, state.TurnCounter)
	}
	if !counciltypes.ValidCost(state.TotalSessionCost) {
		return fmt.Errorf("%w: invalid total_session_cost %v", ErrInvalidState, state.TotalSessionCost)
	}

	previous := 0.0
	for i, record := range state.SessionLog {
		if record.Turn < 1 {
			return fmt.Errorf("%w: session_log[%d] has turn %d", ErrInvalidState, i, record.Turn)
		}
		if !counciltypes.ValidCost(record.TotalCost) || record.TotalCost < previous {
			return fmt.Errorf("%w: session_log[%d] total_cost %v is not non-decreasing", ErrInvalidState, i, record.TotalCost)
		}
		previous = record.TotalCost
	}
	if state.TotalSessionCost < previous {
		return fmt.Errorf("%w: total_session_cost %v below logged cost %v", ErrInvalidState, state.TotalSessionCost, previous)
	}

	for modelID, history := range state.CouncilHistories {
		for i, msg := range history {
			if !counciltypes.IsValidRole(msg.Role) {
				return fmt.Errorf("%w: history of %s has unknown role %q at %d", ErrInvalidState, modelID, msg.Role, i)
			}
		}
	}
	return nil
}

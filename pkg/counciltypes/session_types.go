package counciltypes

import "sort"

// Message roles accepted in conversation histories.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// DefaultOutputFilename is used until the first turn assigns a slug-based name.
const DefaultOutputFilename = "council_session.md"

// Message represents a single message in an advisor's conversation history.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// IsValidRole reports whether role is one of the known message roles.
func IsValidRole(role string) bool {
	switch role {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	default:
		return false
	}
}

// AdvisorDescriptor pairs a unique display name with an opaque model identifier.
type AdvisorDescriptor struct {
	Name    string
	ModelID string
}

// TurnRecord is appended to the session log once per completed turn.
type TurnRecord struct {
	Turn             int     `json:"turn"`
	UserPrompt       string  `json:"user_prompt"`
	RapporteurReport string  `json:"rapporteur_report"`
	TotalCost        float64 `json:"total_cost"` // cumulative session cost at turn end, USD
}

// SessionState is the aggregate root of a council session and the unit of persistence.
// Field order is the serialization order.
type SessionState struct {
	Running              bool                 `json:"running"`
	SelectedModels       map[string]string    `json:"selected_models"`
	RapporteurModelID    string               `json:"rapporteur_model_id"`
	CouncilHistories     map[string][]Message `json:"council_histories"`
	SessionLog           []TurnRecord         `json:"session_log"`
	TotalSessionCost     float64              `json:"total_session_cost"`
	TurnCounter          int                  `json:"turn_counter"`
	LastRapporteurReport string               `json:"last_rapporteur_report"`
	OutputFilename       string               `json:"output_filename"`
	LastUserInput        string               `json:"last_user_input"`
}

// NewSessionState returns a fresh session with all defaults applied.
func NewSessionState() *SessionState {
	return &SessionState{
		Running:          true,
		SelectedModels:   make(map[string]string),
		CouncilHistories: make(map[string][]Message),
		SessionLog:       []TurnRecord{},
		TurnCounter:      1,
		OutputFilename:   DefaultOutputFilename,
	}
}

// TurnCost returns the cost accrued since the last logged turn.
func (s *SessionState) TurnCost() float64 {
	if len(s.SessionLog) == 0 {
		return s.TotalSessionCost
	}
	return s.TotalSessionCost - s.SessionLog[len(s.SessionLog)-1].TotalCost
}

// AppendTurn records the current turn in the session log and advances the counter.
func (s *SessionState) AppendTurn() TurnRecord {
	record := TurnRecord{
		Turn:             s.TurnCounter,
		UserPrompt:       s.LastUserInput,
		RapporteurReport: s.LastRapporteurReport,
		TotalCost:        s.TotalSessionCost,
	}
	s.SessionLog = append(s.SessionLog, record)
	s.TurnCounter++
	return record
}

// Advisors returns the selected advisors ordered by name.
func (s *SessionState) Advisors() []AdvisorDescriptor {
	advisors := make([]AdvisorDescriptor, 0, len(s.SelectedModels))
	for name, modelID := range s.SelectedModels {
		advisors = append(advisors, AdvisorDescriptor{Name: name, ModelID: modelID})
	}
	sort.Slice(advisors, func(i, j int) bool { return advisors[i].Name < advisors[j].Name })
	return advisors
}

// HasAdvisors reports whether the advisor selection has been made.
func (s *SessionState) HasAdvisors() bool {
	return len(s.SelectedModels) > 0
}

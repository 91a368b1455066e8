// Package council runs one turn of an AI Council session: concurrent dispatch to the
// advisors, the audit trail, history and cost updates, and the rapporteur synthesis.
package council

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"aicouncil/internal/audit"
	"aicouncil/internal/logger"
	"aicouncil/internal/services"
	"aicouncil/pkg/counciltypes"
)

// NoResponsesReport replaces the rapporteur report when every advisor failed.
const NoResponsesReport = "> [!ERROR]\n> No successful responses were received from the council for this turn."

// RapporteurName is the display name used for the synthesis call.
const RapporteurName = "Rapporteur"

// DefaultCallTimeout bounds a single advisor call. Zero disables the deadline.
const DefaultCallTimeout time.Duration = 0

const rapporteurInstructions = "Please analyze the following data from the AI Council session and generate your synthesis report according to your instructions. " +
	"The data is provided in JSON format below:\n\n"

// Orchestrator executes council turns. It holds no session state of its own; the state
// passed to RunTurn is exclusively owned by the call until it returns.
type Orchestrator struct {
	advisors         *services.AdvisorService
	audit            *audit.Logger
	rapporteurPrompt string
	observer         counciltypes.ProgressObserver
	log              *log.Logger
}

// NewOrchestrator creates an orchestrator that calls models through advisors, writes
// audit records with auditLog and sends rapporteurSystemPrompt to the rapporteur.
func NewOrchestrator(advisors *services.AdvisorService, auditLog *audit.Logger, rapporteurSystemPrompt string) *Orchestrator {
	return &Orchestrator{
		advisors:         advisors,
		audit:            auditLog,
		rapporteurPrompt: rapporteurSystemPrompt,
		log:              logger.NewStyledLogger("Orchestrator"),
	}
}

// SetObserver installs a progress observer for subsequent turns. Nil removes it.
func (o *Orchestrator) SetObserver(observer counciltypes.ProgressObserver) {
	o.observer = observer
}

// RunTurn dispatches prompt to every selected advisor, folds the successful answers
// into the state and asks the rapporteur for a synthesis.
//
// The turn counter and session log are left untouched; the caller appends the TurnRecord.
// The only error returned is an audit write failure, reported after the state has been
// fully updated.
func (o *Orchestrator) RunTurn(ctx context.Context, state *counciltypes.SessionState, prompt string) (*counciltypes.SessionState, error) {
	traceID := uuid.NewString()
	turnLog := o.log.With("turn", state.TurnCounter, "trace", traceID)
	turnLog.Debug("Starting turn", "advisors", len(state.SelectedModels))

	if state.CouncilHistories == nil {
		state.CouncilHistories = make(map[string][]counciltypes.Message)
	}

	// Phase 1: Fan out to the council and wait for every advisor
	results := o.dispatch(ctx, state, prompt)

	// Phase 2: Audit trail, written whatever the outcome
	auditErr := o.audit.Log(audit.NewRecord(state.TurnCounter, prompt, results))
	if auditErr != nil {
		turnLog.Error("Failed to write audit record", "error", auditErr)
	}

	// Phase 3: Fold successful answers into histories and cost
	responses := make(orderedResponses, 0, len(results))
	for _, result := range results {
		if result.Failed {
			turnLog.Warn("Advisor failed", "advisor", result.Advisor, "error", result.Response)
			continue
		}
		state.CouncilHistories[result.ModelID] = append(state.CouncilHistories[result.ModelID],
			counciltypes.Message{Role: counciltypes.RoleUser, Content: prompt},
			counciltypes.Message{Role: counciltypes.RoleAssistant, Content: result.Response},
		)
		responses = append(responses, namedResponse{Name: result.Advisor, Response: result.Response})
		state.TotalSessionCost += result.CostUSD
	}

	// Phase 4: Synthesis
	if len(responses) == 0 {
		turnLog.Warn("No successful responses from the council, skipping rapporteur")
		state.LastRapporteurReport = NoResponsesReport
		return state, auditErr
	}

	report, cost := o.synthesize(ctx, state, responses)
	state.LastRapporteurReport = report
	state.TotalSessionCost += cost

	turnLog.Info("Turn complete", "responses", len(responses), "cost", fmt.Sprintf("%.6f", state.TotalSessionCost))
	return state, auditErr
}

// dispatch runs one goroutine per advisor and returns the results in completion order.
func (o *Orchestrator) dispatch(ctx context.Context, state *counciltypes.SessionState, prompt string) []counciltypes.AdvisorResult {
	advisors := state.Advisors()
	resultsCh := make(chan counciltypes.AdvisorResult, len(advisors))

	var wg sync.WaitGroup
	for _, advisor := range advisors {
		stored := state.CouncilHistories[advisor.ModelID]
		history := make([]counciltypes.Message, 0, len(stored)+1)
		history = append(history, stored...)
		history = append(history, counciltypes.Message{Role: counciltypes.RoleUser, Content: prompt})

		if o.observer != nil {
			o.observer.AdvisorStarted(advisor)
		}

		wg.Add(1)
		go func(advisor counciltypes.AdvisorDescriptor, history []counciltypes.Message) {
			defer wg.Done()
			result := o.advisors.Invoke(ctx, advisor.ModelID, advisor.Name, history)
			if o.observer != nil {
				o.observer.AdvisorFinished(result)
			}
			resultsCh <- result
		}(advisor, history)
	}

	wg.Wait()
	close(resultsCh)

	results := make([]counciltypes.AdvisorResult, 0, len(advisors))
	for result := range resultsCh {
		results = append(results, result)
	}
	return results
}

func (o *Orchestrator) synthesize(ctx context.Context, state *counciltypes.SessionState, responses orderedResponses) (string, float64) {
	payload, err := marshalIndent(rapporteurPayload{
		UserFeedback:     state.LastUserInput,
		CouncilResponses: responses,
	})
	if err != nil {
		return fmt.Sprintf("Rapporteur failed to generate a report: %v", err), 0
	}

	messages := []counciltypes.Message{
		{Role: counciltypes.RoleSystem, Content: o.rapporteurPrompt},
		{Role: counciltypes.RoleUser, Content: rapporteurInstructions + "```json\n" + string(payload) + "\n```"},
	}

	if o.observer != nil {
		o.observer.RapporteurStarted(state.RapporteurModelID)
	}
	result := o.advisors.Invoke(ctx, state.RapporteurModelID, RapporteurName, messages)
	if o.observer != nil {
		o.observer.RapporteurFinished(result)
	}

	if result.Failed {
		o.log.Error("Rapporteur failed", "model", state.RapporteurModelID, "error", result.Response)
		return "Rapporteur failed to generate a report: " + result.Response, 0
	}
	return result.Response, result.CostUSD
}

type rapporteurPayload struct {
	UserFeedback     string           `json:"user_feedback"`
	CouncilResponses orderedResponses `json:"council_responses"`
}

type namedResponse struct {
	Name     string
	Response string
}

// orderedResponses encodes as a JSON object whose keys keep insertion order.
type orderedResponses []namedResponse

func (r orderedResponses) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, entry := range r {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := marshalCompact(entry.Name)
		if err != nil {
			return nil, err
		}
		value, err := marshalCompact(entry.Response)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// marshalCompact encodes v without escaping HTML characters, which the models should
// see verbatim.
func marshalCompact(v any) ([]byte, error) {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func marshalIndent(v any) ([]byte, error) {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

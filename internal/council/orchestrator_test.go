package council

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aicouncil/internal/audit"
	"aicouncil/internal/services"
	"aicouncil/internal/session"
	"aicouncil/pkg/counciltypes"
)

const rapporteurModel = "rapporteur-model"

type scriptedReply struct {
	text  string
	cost  float64
	err   error
	delay time.Duration
}

// scriptedClient answers per model identifier and records every request.
type scriptedClient struct {
	mu       sync.Mutex
	replies  map[string]scriptedReply
	requests []counciltypes.CompletionRequest
}

func newScriptedClient(replies map[string]scriptedReply) *scriptedClient {
	return &scriptedClient{replies: replies}
}

func (c *scriptedClient) Complete(ctx context.Context, req counciltypes.CompletionRequest) (counciltypes.Completion, error) {
	c.mu.Lock()
	c.requests = append(c.requests, req)
	reply, ok := c.replies[req.Model]
	c.mu.Unlock()

	if !ok {
		return counciltypes.Completion{}, errors.New("unknown model " + req.Model)
	}
	if reply.delay > 0 {
		select {
		case <-time.After(reply.delay):
		case <-ctx.Done():
			return counciltypes.Completion{}, ctx.Err()
		}
	}
	if reply.err != nil {
		return counciltypes.Completion{}, reply.err
	}
	return counciltypes.Completion{Text: reply.text, CostUSD: reply.cost}, nil
}

func (c *scriptedClient) requestsFor(model string) []counciltypes.CompletionRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	var matched []counciltypes.CompletionRequest
	for _, req := range c.requests {
		if req.Model == model {
			matched = append(matched, req)
		}
	}
	return matched
}

func newTestState() *counciltypes.SessionState {
	state := counciltypes.NewSessionState()
	state.SelectedModels = map[string]string{"A": "m1", "B": "m2"}
	state.RapporteurModelID = rapporteurModel
	state.LastUserInput = "hello"
	return state
}

func newTestOrchestrator(t *testing.T, client counciltypes.LLMClient) (*Orchestrator, *audit.Logger) {
	t.Helper()
	auditLog := audit.NewLogger(filepath.Join(t.TempDir(), "logs"))
	return NewOrchestrator(services.NewAdvisorService(client, 0), auditLog, "You are the rapporteur."), auditLog
}

// rapporteurPayloadOf decodes the JSON block of the rapporteur's user message.
func rapporteurPayloadOf(t *testing.T, req counciltypes.CompletionRequest) (string, map[string]any) {
	t.Helper()
	require.Len(t, req.Messages, 2)
	assert.Equal(t, counciltypes.RoleSystem, req.Messages[0].Role)
	assert.Equal(t, "You are the rapporteur.", req.Messages[0].Content)

	content := req.Messages[1].Content
	start := strings.Index(content, "```json\n")
	end := strings.LastIndex(content, "\n```")
	require.True(t, start >= 0 && end > start, "no json block in %q", content)

	raw := content[start+len("```json\n") : end]
	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &payload))
	return raw, payload
}

func readAuditEntries(t *testing.T, auditLog *audit.Logger, turn int) []audit.Entry {
	t.Helper()
	data, err := os.ReadFile(auditLog.Path(turn))
	require.NoError(t, err)

	var record audit.Record
	require.NoError(t, json.Unmarshal(data, &record))
	assert.Equal(t, turn, record.Turn)
	return record.Responses
}

func TestRunTurn_AllSucceed(t *testing.T) {
	client := newScriptedClient(map[string]scriptedReply{
		"m1":            {text: "answer A", cost: 0.01},
		"m2":            {text: "answer B", cost: 0.02},
		rapporteurModel: {text: "## Synthesis"},
	})
	orchestrator, auditLog := newTestOrchestrator(t, client)
	state := newTestState()

	state, err := orchestrator.RunTurn(context.Background(), state, "hello")
	require.NoError(t, err)

	assert.InDelta(t, 0.03, state.TotalSessionCost, 1e-9)
	assert.Len(t, state.CouncilHistories["m1"], 2)
	assert.Len(t, state.CouncilHistories["m2"], 2)
	assert.Equal(t, []counciltypes.Message{
		{Role: counciltypes.RoleUser, Content: "hello"},
		{Role: counciltypes.RoleAssistant, Content: "answer A"},
	}, state.CouncilHistories["m1"])
	assert.Equal(t, "## Synthesis", state.LastRapporteurReport)

	// The orchestrator leaves turn bookkeeping to the caller.
	assert.Equal(t, 1, state.TurnCounter)
	assert.Empty(t, state.SessionLog)

	assert.InDelta(t, 0.03, state.TurnCost(), 1e-9)
	record := state.AppendTurn()
	assert.InDelta(t, 0.03, record.TotalCost, 1e-9)
	assert.Equal(t, 2, state.TurnCounter)

	_, payload := rapporteurPayloadOf(t, client.requestsFor(rapporteurModel)[0])
	assert.Equal(t, "hello", payload["user_feedback"])
	assert.Equal(t, map[string]any{"A": "answer A", "B": "answer B"}, payload["council_responses"])

	assert.Len(t, readAuditEntries(t, auditLog, 1), 2)
}

func TestRunTurn_NonFiniteFeesKeepStatePersistable(t *testing.T) {
	client := newScriptedClient(map[string]scriptedReply{
		"m1":            {text: "answer A", cost: math.Inf(1)},
		"m2":            {text: "answer B", cost: 0.02},
		rapporteurModel: {text: "report", cost: math.NaN()},
	})
	orchestrator, auditLog := newTestOrchestrator(t, client)

	state, err := orchestrator.RunTurn(context.Background(), newTestState(), "hello")
	require.NoError(t, err)

	assert.InDelta(t, 0.02, state.TotalSessionCost, 1e-9)
	assert.Equal(t, "report", state.LastRapporteurReport)
	assert.Len(t, readAuditEntries(t, auditLog, 1), 2)

	state.AppendTurn()
	_, err = session.Encode(state)
	assert.NoError(t, err)
}

func TestRunTurn_PartialFailure(t *testing.T) {
	client := newScriptedClient(map[string]scriptedReply{
		"m1":            {err: errors.New("503 service unavailable")},
		"m2":            {text: "answer B", cost: 0.02},
		rapporteurModel: {text: "report", cost: 0.005},
	})
	orchestrator, auditLog := newTestOrchestrator(t, client)
	state := newTestState()

	state, err := orchestrator.RunTurn(context.Background(), state, "hello")
	require.NoError(t, err)

	assert.Empty(t, state.CouncilHistories["m1"])
	assert.Len(t, state.CouncilHistories["m2"], 2)
	assert.InDelta(t, 0.025, state.TotalSessionCost, 1e-9)

	_, payload := rapporteurPayloadOf(t, client.requestsFor(rapporteurModel)[0])
	assert.Equal(t, map[string]any{"B": "answer B"}, payload["council_responses"])

	entries := readAuditEntries(t, auditLog, 1)
	require.Len(t, entries, 2)
	var failed []audit.Entry
	for _, entry := range entries {
		if entry.Error {
			failed = append(failed, entry)
		}
	}
	require.Len(t, failed, 1)
	assert.Equal(t, "A", failed[0].Advisor)
	assert.Contains(t, failed[0].Response, "503 service unavailable")
	assert.Zero(t, failed[0].Cost)
}

func TestRunTurn_AllFail(t *testing.T) {
	client := newScriptedClient(map[string]scriptedReply{
		"m1":            {err: errors.New("boom")},
		"m2":            {err: errors.New("bang")},
		rapporteurModel: {text: "should not be called"},
	})
	orchestrator, auditLog := newTestOrchestrator(t, client)
	state := newTestState()
	state.TotalSessionCost = 0.5

	state, err := orchestrator.RunTurn(context.Background(), state, "hello")
	require.NoError(t, err)

	assert.Equal(t, NoResponsesReport, state.LastRapporteurReport)
	assert.InDelta(t, 0.5, state.TotalSessionCost, 1e-12)
	assert.Empty(t, client.requestsFor(rapporteurModel))
	assert.Empty(t, state.CouncilHistories["m1"])
	assert.Empty(t, state.CouncilHistories["m2"])
	assert.Len(t, readAuditEntries(t, auditLog, 1), 2)
}

func TestRunTurn_RapporteurFailure(t *testing.T) {
	client := newScriptedClient(map[string]scriptedReply{
		"m1":            {text: "a", cost: 0.01},
		"m2":            {text: "b", cost: 0.01},
		rapporteurModel: {err: errors.New("context length exceeded")},
	})
	orchestrator, _ := newTestOrchestrator(t, client)

	state, err := orchestrator.RunTurn(context.Background(), newTestState(), "hello")
	require.NoError(t, err)

	assert.Equal(t, "Rapporteur failed to generate a report: context length exceeded", state.LastRapporteurReport)
	assert.InDelta(t, 0.02, state.TotalSessionCost, 1e-9)
}

func TestRunTurn_SendsStoredHistoryPlusPrompt(t *testing.T) {
	client := newScriptedClient(map[string]scriptedReply{
		"m1":            {text: "second answer"},
		"m2":            {text: "other"},
		rapporteurModel: {text: "report"},
	})
	orchestrator, _ := newTestOrchestrator(t, client)

	state := newTestState()
	state.TurnCounter = 2
	state.CouncilHistories["m1"] = []counciltypes.Message{
		{Role: counciltypes.RoleUser, Content: "first"},
		{Role: counciltypes.RoleAssistant, Content: "first answer"},
	}

	state, err := orchestrator.RunTurn(context.Background(), state, "follow up")
	require.NoError(t, err)

	sent := client.requestsFor("m1")[0].Messages
	assert.Equal(t, []counciltypes.Message{
		{Role: counciltypes.RoleUser, Content: "first"},
		{Role: counciltypes.RoleAssistant, Content: "first answer"},
		{Role: counciltypes.RoleUser, Content: "follow up"},
	}, sent)

	require.Len(t, state.CouncilHistories["m1"], 4)
	assert.Equal(t, "second answer", state.CouncilHistories["m1"][3].Content)
	assert.Len(t, client.requestsFor("m2")[0].Messages, 1)
}

func TestRunTurn_PayloadKeepsCompletionOrder(t *testing.T) {
	client := newScriptedClient(map[string]scriptedReply{
		"m1":            {text: "slow", delay: 80 * time.Millisecond},
		"m2":            {text: "fast"},
		rapporteurModel: {text: "report"},
	})
	orchestrator, _ := newTestOrchestrator(t, client)

	_, err := orchestrator.RunTurn(context.Background(), newTestState(), "hello")
	require.NoError(t, err)

	raw, _ := rapporteurPayloadOf(t, client.requestsFor(rapporteurModel)[0])
	assert.Less(t, strings.Index(raw, `"B": "fast"`), strings.Index(raw, `"A": "slow"`))
}

func TestRunTurn_AuditFailureReturnedAfterUpdate(t *testing.T) {
	client := newScriptedClient(map[string]scriptedReply{
		"m1":            {text: "a", cost: 0.01},
		"m2":            {text: "b", cost: 0.02},
		rapporteurModel: {text: "report"},
	})

	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))
	orchestrator := NewOrchestrator(services.NewAdvisorService(client, 0), audit.NewLogger(filepath.Join(blocker, "logs")), "sys")

	state, err := orchestrator.RunTurn(context.Background(), newTestState(), "hello")

	require.Error(t, err)
	assert.Equal(t, "report", state.LastRapporteurReport)
	assert.InDelta(t, 0.03, state.TotalSessionCost, 1e-9)
}

type recordingObserver struct {
	mu       sync.Mutex
	started  []string
	finished []string
	rapport  []string
}

func (o *recordingObserver) AdvisorStarted(advisor counciltypes.AdvisorDescriptor) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.started = append(o.started, advisor.Name)
}

func (o *recordingObserver) AdvisorFinished(result counciltypes.AdvisorResult) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.finished = append(o.finished, result.Advisor)
}

func (o *recordingObserver) RapporteurStarted(modelID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.rapport = append(o.rapport, "started:"+modelID)
}

func (o *recordingObserver) RapporteurFinished(result counciltypes.AdvisorResult) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.rapport = append(o.rapport, "finished:"+result.Advisor)
}

func TestRunTurn_NotifiesObserver(t *testing.T) {
	client := newScriptedClient(map[string]scriptedReply{
		"m1":            {text: "a"},
		"m2":            {err: errors.New("down")},
		rapporteurModel: {text: "report"},
	})
	orchestrator, _ := newTestOrchestrator(t, client)
	observer := &recordingObserver{}
	orchestrator.SetObserver(observer)

	_, err := orchestrator.RunTurn(context.Background(), newTestState(), "hello")
	require.NoError(t, err)

	assert.Equal(t, []string{"A", "B"}, observer.started)
	assert.ElementsMatch(t, []string{"A", "B"}, observer.finished)
	assert.Equal(t, []string{"started:" + rapporteurModel, "finished:" + RapporteurName}, observer.rapport)
}

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aicouncil/internal/config"
	"aicouncil/internal/session"
	"aicouncil/pkg/counciltypes"
)

func TestCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, cmd := range rootCmd.Commands() {
		names[cmd.Name()] = true
	}

	assert.True(t, names["run"])
	assert.True(t, names["status"])
	assert.True(t, names["version"])

	for _, key := range []string{config.KeyStateFile, config.KeyOutputDir, config.KeyLogDir, config.KeyTimeout, config.KeyNoProgress} {
		assert.NotNil(t, rootCmd.PersistentFlags().Lookup(key), key)
	}
}

func TestFormatStatus(t *testing.T) {
	state := counciltypes.NewSessionState()
	state.SelectedModels["Claude"] = "anthropic/claude-sonnet-4"
	state.SelectedModels["GPT"] = "openai/gpt-4o"
	state.RapporteurModelID = "openai/gpt-4o-mini"
	state.TurnCounter = 3
	state.TotalSessionCost = 0.0425
	state.OutputFilename = "20250601_cloud_migration.md"
	state.SessionLog = []counciltypes.TurnRecord{
		{Turn: 1, UserPrompt: "a", RapporteurReport: "r1", TotalCost: 0.02},
		{Turn: 2, UserPrompt: "b", RapporteurReport: "r2", TotalCost: 0.0425},
	}

	out := formatStatus(state)

	assert.Contains(t, out, "Saved session at turn 3 (2 completed)")
	assert.Contains(t, out, "  - Claude (anthropic/claude-sonnet-4)\n  - GPT (openai/gpt-4o)")
	assert.Contains(t, out, "Rapporteur: openai/gpt-4o-mini")
	assert.Contains(t, out, "Total cost: $0.042500")
	assert.Contains(t, out, "Transcript: 20250601_cloud_migration.md")
}

func TestFormatStatus_NoAdvisors(t *testing.T) {
	out := formatStatus(counciltypes.NewSessionState())

	assert.Contains(t, out, "Advisors: none selected")
	assert.NotContains(t, out, "Rapporteur:")
}

func TestRunStatus(t *testing.T) {
	dir := t.TempDir()
	stateFile := filepath.Join(dir, "state.json")
	settings.Set(config.KeyStateFile, stateFile)
	t.Cleanup(func() { settings.Set(config.KeyStateFile, session.DefaultStateFile) })

	var out bytes.Buffer
	statusCmd.SetOut(&out)
	t.Cleanup(func() { statusCmd.SetOut(os.Stdout) })

	require.NoError(t, runStatus(statusCmd, nil))
	assert.Equal(t, "No saved session.\n", out.String())

	state := counciltypes.NewSessionState()
	state.SelectedModels["GPT"] = "openai/gpt-4o"
	state.TurnCounter = 2
	require.NoError(t, session.NewStore(stateFile, dir).Save(state))

	out.Reset()
	require.NoError(t, runStatus(statusCmd, nil))
	assert.Contains(t, out.String(), "Saved session at turn 2")
	assert.Contains(t, out.String(), "GPT (openai/gpt-4o)")
}

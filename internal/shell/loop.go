// Package shell drives an interactive council session: it collects input, runs turns
// through the orchestrator, persists the session after each turn and finalizes it on exit.
package shell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"aicouncil/internal/config"
	"aicouncil/internal/council"
	"aicouncil/internal/document"
	"aicouncil/internal/logger"
	"aicouncil/internal/session"
	"aicouncil/pkg/counciltypes"
)

// Progress is a turn-scoped progress view.
type Progress interface {
	counciltypes.ProgressObserver
	Begin(ctx context.Context, turn int)
	End()
}

// Loop wires the collaborators of an interactive session.
type Loop struct {
	Config       *config.Config
	Store        *session.Store
	Orchestrator *council.Orchestrator
	Client       counciltypes.LLMClient // used for the filename slug
	UI           counciltypes.Interaction

	// Optional collaborators.
	Progress  Progress
	Validate  func(modelIDs []string) error
	Clipboard func(text string) error
	Now       func() time.Time
}

// Run executes the session until the user quits. Cancelling ctx stops the loop without
// finalizing, so the last saved turn stays resumable.
func (l *Loop) Run(ctx context.Context) error {
	if l.Now == nil {
		l.Now = time.Now
	}

	state := l.Store.LoadOrCreate(l.UI)

	if state.TurnCounter == 1 && !state.HasAdvisors() {
		l.UI.Welcome()
		selected, err := l.UI.SelectAdvisors(l.Config.Advisors())
		if err != nil {
			return fmt.Errorf("select advisors: %w", err)
		}
		for _, advisor := range selected {
			state.SelectedModels[advisor.Name] = advisor.ModelID
		}
		state.RapporteurModelID = l.Config.Rapporteur
	}

	if l.Validate != nil {
		modelIDs := []string{state.RapporteurModelID}
		for _, advisor := range state.Advisors() {
			modelIDs = append(modelIDs, advisor.ModelID)
		}
		if err := l.Validate(modelIDs); err != nil {
			return fmt.Errorf("provider credentials: %w", err)
		}
	}

	if l.Progress != nil {
		l.Orchestrator.SetObserver(l.Progress)
	}

	for state.Running {
		prompt, proceed, err := l.nextPrompt(ctx, state)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				return err
			}
			logger.Debug("Input closed, ending session")
			state.Running = false
			break
		}
		if !proceed {
			break
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		turn := state.TurnCounter
		if l.Progress != nil {
			l.Progress.Begin(ctx, turn)
		}
		state, err = l.Orchestrator.RunTurn(ctx, state, prompt)
		if l.Progress != nil {
			l.Progress.End()
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		auditErr := err

		l.UI.ShowReport(state.LastRapporteurReport)
		l.UI.ShowTelemetry(state.TurnCost(), state.TotalSessionCost, turn)
		state.AppendTurn()

		if err := l.Store.Save(state); err != nil {
			return fmt.Errorf("save session: %w", err)
		}
		if auditErr != nil {
			return fmt.Errorf("audit log: %w", auditErr)
		}
	}

	l.UI.Notify("\nSession ended.")
	transcript, err := l.Store.Finalize(state)
	if err != nil {
		return fmt.Errorf("finalize session: %w", err)
	}
	if transcript != "" {
		l.UI.Notify(fmt.Sprintf("[+] Obsidian-friendly session report exported to %s", transcript))
	}
	return nil
}

// nextPrompt gathers the council prompt of the current turn. proceed is false when the
// user asked to quit.
func (l *Loop) nextPrompt(ctx context.Context, state *counciltypes.SessionState) (prompt string, proceed bool, err error) {
	if state.TurnCounter == 1 {
		return l.initialPrompt(ctx, state)
	}

	for {
		input, err := l.UI.FollowUp(state.TurnCounter)
		if err != nil {
			return "", false, err
		}

		switch strings.ToLower(input) {
		case "":
			continue
		case "quit", "exit":
			state.Running = false
			return "", false, nil
		case "copy":
			l.copyReport(state.LastRapporteurReport)
			continue
		case "go":
			question, ok := council.ExtractSuggestedQuestion(state.LastRapporteurReport)
			if !ok {
				l.UI.Warn("Could not find a suggested question. Please enter your feedback manually.")
				continue
			}
			l.UI.Notify(fmt.Sprintf("\nUsing suggested question: '%s'", question))
			input = question
		}

		state.LastUserInput = input
		doc, err := l.UI.DocumentContext()
		if err != nil {
			return "", false, err
		}
		return council.BuildFollowUpPrompt(doc, state.LastRapporteurReport, input), true, nil
	}
}

func (l *Loop) initialPrompt(ctx context.Context, state *counciltypes.SessionState) (string, bool, error) {
	initial, err := l.UI.InitialPrompt(l.Config.Templates)
	if err != nil {
		return "", false, err
	}
	doc, err := l.UI.DocumentContext()
	if err != nil {
		return "", false, err
	}

	prompt := doc + initial
	state.LastUserInput = document.StripContext(prompt)

	logger.Debug("Generating filename slug")
	slug := session.GenerateSlug(ctx, l.Client, state.Advisors(), l.Config.Prompts.FilenameSlugPrompt, state.LastUserInput)
	state.OutputFilename = session.OutputFilename(l.Now(), slug)
	l.UI.Notify(fmt.Sprintf("-> Session will be saved to: %s", filepath.Join(l.Store.OutputDir, state.OutputFilename)))

	return prompt, true, nil
}

func (l *Loop) copyReport(report string) {
	if strings.TrimSpace(report) == "" {
		l.UI.Warn("There is no report to copy yet.")
		return
	}
	if l.Clipboard == nil {
		l.UI.Warn("Clipboard is not available.")
		return
	}
	if err := l.Clipboard(report); err != nil {
		l.UI.Warn(fmt.Sprintf("Could not copy the report: %v", err))
		return
	}
	l.UI.Notify("Report copied to the clipboard.")
}

package session

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"aicouncil/pkg/counciltypes"
)

const transcriptTitle = "AI Council Session Report"

type transcriptMeta struct {
	Title        string   `yaml:"title"`
	Date         string   `yaml:"date"`
	Advisors     []string `yaml:"advisors"`
	Rapporteur   string   `yaml:"rapporteur,omitempty"`
	Turns        int      `yaml:"turns"`
	TotalCostUSD float64  `yaml:"total_cost_usd"`
}

// RenderTranscript renders the session log as an Obsidian-friendly Markdown document
// with YAML front matter.
func RenderTranscript(state *counciltypes.SessionState, date time.Time) ([]byte, error) {
	meta := transcriptMeta{
		Title:        transcriptTitle,
		Date:         date.Format("2006-01-02"),
		Rapporteur:   state.RapporteurModelID,
		Turns:        len(state.SessionLog),
		TotalCostUSD: state.TotalSessionCost,
	}
	for _, advisor := range state.Advisors() {
		meta.Advisors = append(meta.Advisors, fmt.Sprintf("%s (%s)", advisor.Name, advisor.ModelID))
	}

	front, err := yaml.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("encode transcript front matter: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString("---\n")
	buf.Write(bytes.TrimRight(front, "\n"))
	buf.WriteString("\n---\n\n")

	buf.WriteString("# 🏛️ " + transcriptTitle + "\n\n")
	buf.WriteString("This document contains the complete transcript of the AI Council session.\n\n")

	for _, record := range state.SessionLog {
		fmt.Fprintf(&buf, "***\n\n## 🔄 Turn %d\n\n", record.Turn)
		fmt.Fprintf(&buf, "> [!QUESTION] User Input for Turn %d\n> %s\n\n", record.Turn, strings.ReplaceAll(record.UserPrompt, "\n", "\n> "))
		buf.WriteString("### 🧠 Rapporteur's Synthesis\n\n")
		buf.WriteString(record.RapporteurReport)
		buf.WriteString("\n\n")
	}

	return buf.Bytes(), nil
}

// Package ui implements the terminal side of the council: prompts, report rendering,
// turn telemetry, live progress and clipboard access.
package ui

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"aicouncil/internal/document"
	"aicouncil/internal/version"
	"aicouncil/pkg/counciltypes"
)

var placeholderPattern = regexp.MustCompile(`\{(.*?)\}`)

type consoleStyles struct {
	banner  lipgloss.Style
	heading lipgloss.Style
	success lipgloss.Style
	warning lipgloss.Style
	accent  lipgloss.Style
	cost    lipgloss.Style
}

func newConsoleStyles() consoleStyles {
	return consoleStyles{
		banner:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("33")),
		heading: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214")),
		success: lipgloss.NewStyle().Foreground(lipgloss.Color("46")),
		warning: lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		accent:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("201")),
		cost:    lipgloss.NewStyle().Foreground(lipgloss.Color("226")),
	}
}

// Console implements counciltypes.Interaction on a line-oriented reader and writer.
type Console struct {
	in     *bufio.Reader
	out    io.Writer
	styles consoleStyles
}

// NewConsole creates a console reading answers from in and printing to out.
func NewConsole(in io.Reader, out io.Writer) *Console {
	return &Console{
		in:     bufio.NewReader(in),
		out:    out,
		styles: newConsoleStyles(),
	}
}

// readLine prompts and returns one line without its line terminator.
// io.EOF is returned only when no input is left at all.
func (c *Console) readLine(prompt string) (string, error) {
	fmt.Fprint(c.out, prompt)
	line, err := c.in.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && line != "" {
			return strings.TrimRight(line, "\r\n"), nil
		}
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (c *Console) println(style lipgloss.Style, text string) {
	fmt.Fprintln(c.out, style.Render(text))
}

// Welcome prints the opening banner.
func (c *Console) Welcome() {
	rule := strings.Repeat("=", 50)
	c.println(c.styles.banner, rule)
	c.println(c.styles.banner, "Welcome to the "+version.GetFormattedVersion())
	c.println(c.styles.banner, rule)
}

// ConfirmResume asks whether the saved session should be resumed. Anything but
// y/yes declines.
func (c *Console) ConfirmResume() bool {
	answer, err := c.readLine("A previous session was found. Resume it? (y/n): ")
	if err != nil {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		c.println(c.styles.success, "... Resuming previous session ...")
		return true
	default:
		return false
	}
}

// SelectAdvisors lists the available advisors and reads a comma separated list of
// numbers. An empty answer selects everyone.
func (c *Console) SelectAdvisors(available []counciltypes.AdvisorDescriptor) ([]counciltypes.AdvisorDescriptor, error) {
	c.println(c.styles.heading, "\n--- Select Your Advisors ---")
	for i, advisor := range available {
		fmt.Fprintf(c.out, "  [%d] %s\n", i+1, advisor.Name)
	}

	for {
		answer, err := c.readLine("Select models by number (e.g., 1,3), or press Enter for all: ")
		if err != nil {
			return nil, err
		}

		selected, err := ParseSelection(answer, available)
		if err != nil {
			c.Warn(err.Error())
			continue
		}
		return selected, nil
	}
}

// ParseSelection resolves a "1,3" style answer against available. Duplicates are
// ignored; an empty answer returns all advisors.
func ParseSelection(answer string, available []counciltypes.AdvisorDescriptor) ([]counciltypes.AdvisorDescriptor, error) {
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return append([]counciltypes.AdvisorDescriptor(nil), available...), nil
	}

	seen := make(map[int]bool)
	var selected []counciltypes.AdvisorDescriptor
	for _, part := range strings.Split(answer, ",") {
		index, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("invalid input %q", part)
		}
		if index < 1 || index > len(available) {
			return nil, fmt.Errorf("invalid number detected: %d", index)
		}
		if seen[index] {
			continue
		}
		seen[index] = true
		selected = append(selected, available[index-1])
	}
	return selected, nil
}

// InitialPrompt lets the user pick a template category and template, filling in every
// {placeholder}, or type a custom prompt.
func (c *Console) InitialPrompt(categories []counciltypes.TemplateCategory) (string, error) {
	if len(categories) == 0 {
		return c.customPrompt()
	}

	c.println(c.styles.heading, "\n--- Select a Prompt Template ---")
	for i, category := range categories {
		fmt.Fprintf(c.out, "  [%d] %s\n", i+1, titleize(category.Name))
	}
	fmt.Fprintln(c.out, "  [0] Enter a custom prompt")

	for {
		choice, err := c.readChoice("Select a category by number, or 0 for custom: ", len(categories))
		if err != nil {
			return "", err
		}
		if choice < 0 {
			c.Warn("Invalid category selection.")
			continue
		}
		if choice == 0 {
			return c.customPrompt()
		}

		category := categories[choice-1]
		c.println(c.styles.heading, fmt.Sprintf("\n--- Templates in '%s' ---", titleize(category.Name)))
		for j, template := range category.Templates {
			fmt.Fprintf(c.out, "  [%d] %s\n", j+1, titleize(template.Name))
		}

		templateChoice, err := c.readChoice("Select a template: ", len(category.Templates))
		if err != nil {
			return "", err
		}
		if templateChoice < 1 {
			c.Warn("Invalid template selection.")
			continue
		}

		return c.fillTemplate(category.Templates[templateChoice-1].Text)
	}
}

// readChoice reads a number in [0, limit]; -1 reports an invalid answer.
func (c *Console) readChoice(prompt string, limit int) (int, error) {
	answer, err := c.readLine(prompt)
	if err != nil {
		return 0, err
	}
	choice, convErr := strconv.Atoi(strings.TrimSpace(answer))
	if convErr != nil || choice < 0 || choice > limit {
		return -1, nil
	}
	return choice, nil
}

func (c *Console) customPrompt() (string, error) {
	return c.readLine("Enter your custom prompt for the council:\n> ")
}

func (c *Console) fillTemplate(template string) (string, error) {
	placeholders := Placeholders(template)
	if len(placeholders) == 0 {
		return template, nil
	}

	c.println(c.styles.heading, "\n--- Fill in the template placeholders ---")
	values := make(map[string]string, len(placeholders))
	for _, placeholder := range placeholders {
		highlighted := strings.ReplaceAll(template, "{"+placeholder+"}", "**`{"+placeholder+"}`**")
		fmt.Fprintf(c.out, "\nTemplate Context for '%s':\n", c.styles.accent.Render(placeholder))
		c.renderMarkdown("> " + highlighted)

		value, err := c.readLine(fmt.Sprintf("  Enter value for %s: ", c.styles.accent.Render(placeholder)))
		if err != nil {
			return "", err
		}
		values[placeholder] = value
	}

	return FillTemplate(template, values), nil
}

// Placeholders returns the distinct {placeholder} names of template in order of appearance.
func Placeholders(template string) []string {
	var names []string
	seen := make(map[string]bool)
	for _, match := range placeholderPattern.FindAllStringSubmatch(template, -1) {
		if !seen[match[1]] {
			seen[match[1]] = true
			names = append(names, match[1])
		}
	}
	return names
}

// FillTemplate substitutes every {placeholder} present in values.
func FillTemplate(template string, values map[string]string) string {
	return placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		if value, ok := values[match[1:len(match)-1]]; ok {
			return value
		}
		return match
	})
}

// FollowUp reads the feedback of a later turn.
func (c *Console) FollowUp(turn int) (string, error) {
	rule := strings.Repeat("=", 20)
	c.println(c.styles.banner, fmt.Sprintf("\n%s Turn %d %s", rule, turn, rule))
	fmt.Fprintf(c.out, "Enter your follow-up feedback, or type %s to use the Facilitator's suggested question (%s copies the last report).\n",
		c.styles.success.Render("'go'"), c.styles.success.Render("'copy'"))
	answer, err := c.readLine("Type 'quit' to exit > ")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(answer), nil
}

// DocumentContext offers to load a file and returns its wrapped content, or "" when
// the user declines.
func (c *Console) DocumentContext() (string, error) {
	for {
		answer, err := c.readLine("Add a file for context (txt, md, pdf)? (y/n): ")
		if err != nil {
			return "", err
		}

		switch strings.ToLower(strings.TrimSpace(answer)) {
		case "n", "no", "":
			return "", nil
		case "y", "yes":
			path, err := c.readLine("Please provide the full path to the file: ")
			if err != nil {
				return "", err
			}
			content, loadErr := document.Load(path)
			if loadErr != nil {
				c.Warn("❌ ERROR: " + loadErr.Error())
				continue
			}
			c.println(c.styles.success, fmt.Sprintf("✅ Loaded %d characters from %s.", len([]rune(content)), filepath.Base(document.CleanPath(path))))
			return document.Wrap(content), nil
		default:
			c.Warn("Invalid input.")
		}
	}
}

// ShowReport renders the rapporteur's Markdown report.
func (c *Console) ShowReport(report string) {
	rule := strings.Repeat("=", 50)
	c.println(c.styles.banner, "\n"+rule)
	c.println(c.styles.banner, "           COUNCIL FACILITATOR'S REPORT")
	c.println(c.styles.banner, rule)
	c.renderMarkdown(report)
}

// ShowTelemetry prints the cost line of a completed turn.
func (c *Console) ShowTelemetry(turnCost, totalCost float64, turn int) {
	c.println(c.styles.cost, "\n"+FormatTelemetry(turnCost, totalCost, turn))
}

// FormatTelemetry formats the cost line of a completed turn.
func FormatTelemetry(turnCost, totalCost float64, turn int) string {
	return fmt.Sprintf("--- Turn %d Cost: $%.6f | Total Session Cost: $%.6f ---", turn, turnCost, totalCost)
}

// Notify prints an informational line.
func (c *Console) Notify(message string) {
	c.println(c.styles.success, message)
}

// Warn prints a warning line.
func (c *Console) Warn(message string) {
	c.println(c.styles.warning, message)
}

// renderMarkdown prints markdown through glamour, or verbatim when the terminal has no
// color support.
func (c *Console) renderMarkdown(markdown string) {
	if lipgloss.ColorProfile() == termenv.Ascii {
		fmt.Fprintln(c.out, markdown)
		return
	}

	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err == nil {
		var rendered string
		if rendered, err = renderer.Render(markdown); err == nil {
			fmt.Fprint(c.out, rendered)
			return
		}
	}
	fmt.Fprintln(c.out, markdown)
}

func titleize(name string) string {
	words := strings.Fields(strings.ReplaceAll(name, "_", " "))
	for i, word := range words {
		runes := []rune(strings.ToLower(word))
		runes[0] = []rune(strings.ToUpper(string(runes[0])))[0]
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}

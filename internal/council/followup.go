package council

import (
	"fmt"
	"regexp"
	"strings"
)

// suggestedQuestionPattern matches the first non-empty line of a "> [!QUESTION]" callout
// body. Empty "> " lines between the title and the question are skipped.
var suggestedQuestionPattern = regexp.MustCompile(`>\s*\[!QUESTION\][^\n]*\n(?:>[ \t]*\n)*>[ \t]*(.*)`)

// ExtractSuggestedQuestion returns the question proposed in a report's QUESTION callout,
// with bold markers removed. ok is false when the report has no such callout.
func ExtractSuggestedQuestion(report string) (question string, ok bool) {
	match := suggestedQuestionPattern.FindStringSubmatch(report)
	if match == nil {
		return "", false
	}
	question = strings.ReplaceAll(strings.TrimSpace(match[1]), "**", "")
	if question == "" {
		return "", false
	}
	return question, true
}

// BuildFollowUpPrompt builds the council prompt of a later turn from the previous
// report and the user's feedback. documentContext is prepended verbatim.
func BuildFollowUpPrompt(documentContext, previousReport, feedback string) string {
	return documentContext + fmt.Sprintf("Previous summary:\n%s\n\nMy new feedback: \"%s\"\nRefine your answer.", previousReport, feedback)
}

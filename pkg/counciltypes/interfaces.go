package counciltypes

// ProgressObserver receives live events while a turn is dispatched.
// Implementations must be safe for concurrent use: AdvisorFinished is called
// from the goroutine that ran the call.
type ProgressObserver interface {
	AdvisorStarted(advisor AdvisorDescriptor)
	AdvisorFinished(result AdvisorResult)
	RapporteurStarted(modelID string)
	RapporteurFinished(result AdvisorResult)
}

// ResumePrompter asks whether a previously saved session should be resumed.
type ResumePrompter interface {
	ConfirmResume() bool
}

// TemplateCategory is a named group of prompt templates.
type TemplateCategory struct {
	Name      string
	Templates []PromptTemplate
}

// PromptTemplate is a prompt with {placeholder} fields to be filled by the user.
type PromptTemplate struct {
	Name string
	Text string
}

// Interaction collects input from and presents output to the user.
// Every method is a synchronous call returning plain data.
type Interaction interface {
	ResumePrompter

	// Welcome greets the user at the start of a new session.
	Welcome()

	// SelectAdvisors returns the chosen subset of available advisors.
	SelectAdvisors(available []AdvisorDescriptor) ([]AdvisorDescriptor, error)

	// InitialPrompt returns the first turn's prompt, built from a template or typed freely.
	InitialPrompt(categories []TemplateCategory) (string, error)

	// FollowUp returns the next free-form input for the given turn.
	FollowUp(turn int) (string, error)

	// DocumentContext returns optional supplementary document text, already wrapped.
	DocumentContext() (string, error)

	// ShowReport renders a rapporteur report.
	ShowReport(report string)

	// ShowTelemetry prints the cost summary of a completed turn.
	ShowTelemetry(turnCost, totalCost float64, turn int)

	// Notify prints an informational line.
	Notify(message string)

	// Warn prints a warning line.
	Warn(message string)
}

// Package counciltypes defines the data structures and contracts shared by the AI Council
// components.
//
// # Architecture Overview
//
// A council session is a turn-based loop:
//
//   - Advisors: language models queried independently with the same prompt each turn
//   - Rapporteur: a single model that synthesizes the advisors' answers into a report
//   - Session: the persisted aggregate (histories, turn log, cost) that survives restarts
//
// # Package Organization
//
// ## Session Types (session_types.go)
//
//   - Message: one entry of an advisor's conversation history
//   - AdvisorDescriptor: friendly name and model identifier pair
//   - TurnRecord: immutable log entry appended after each completed turn
//   - SessionState: the unit of persistence
//
// ## Advisor Types (advisor_types.go)
//
//   - CompletionRequest, Completion: provider-neutral request and response
//   - AdvisorResult: per-call outcome, success or failure captured as data
//   - LLMClient: provider client contract
//
// ## Collaborator Interfaces (interfaces.go)
//
//   - ProgressObserver: optional live view over one turn's dispatch
//   - Interaction: user-facing prompts used by the driving loop
//
// All costs in this package are expressed in US dollars.
package counciltypes

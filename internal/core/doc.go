// Package core turns raw cytology measurements into diagnosis requests and
// turns the service's answers into something a view can render.
//
// The package has no transport or UI dependencies. The web server and the
// CLI both drive it through [Service], or use the pieces directly.
//
// # Ingestion
//
// Batch input flows through three steps, each with its own error type:
//
//  1. [ReadTable] / [ParseTable] split text (or an .xlsx sheet) into a header
//     and a lazy sequence of [RawRow]. Unreadable input is a [ParseError].
//  2. [ValidateTable] checks the header against [FeatureSchema]
//     ([SchemaError]) and coerces every cell to a number ([DataError]).
//  3. [BuildBatch] assembles the validated rows into a [BatchRequest].
//
// Single records come from [FormState], which enforces the 1-10 range.
//
// # Request Lifecycle
//
// An [Orchestrator] owns one form's state: idle, pending, succeeded or
// failed. Submitting while pending supersedes the older call by default.
// Every failure is mapped to a user message by [MapError]; nothing escapes
// as a fault.
//
// # Results
//
// [Interpret] classifies a [DiagnosisResult] and selects the recommendation
// list. Single results travel from the submitting view to the results view
// through a one-shot [Handoff].
package core

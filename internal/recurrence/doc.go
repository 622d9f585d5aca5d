// Package recurrence expands recurrence rules into dated occurrences.
//
// Everything here is a pure function of its inputs: no clock, no store. The
// reconciler calls Expand for a rolling window and relies on the output being
// identical across runs so that re-running it never creates duplicates.
package recurrence

// Package runtime drives one executed routine session.
//
// A Runtime consumes a planner.Plan and owns all session state from Start
// until a terminal phase: per-task countdown, overrun tracking, cumulative
// schedule drift, background tasks, checklist gating, and safe mutation of
// the not-yet-reached task sequence.
//
// A Runtime is NOT safe for concurrent use. The session service serializes
// every tick and user action onto one goroutine; tests call methods
// directly. Time only advances through Tick, so tests run in virtual time.
package runtime

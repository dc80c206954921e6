// Package session owns live routine sessions.
//
// One service instance drives at most one session at a time. All state
// mutation, including the wall-clock tick, funnels through a single
// goroutine so user actions and the countdown never race. Callers get
// results back through Snapshot and through events on the bus.
package session

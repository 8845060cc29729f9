// Package engine drives the advisory pipeline end to end. It owns session
// lifecycle (create, seed, run, archive), enforces the single overall
// deadline, and is the only place that applies stage events to the live
// session. Everything below it (combinators, leaf agents, the tool gateway)
// is deadline-agnostic and simply observes context cancellation.
package engine

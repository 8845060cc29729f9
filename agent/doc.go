// Package agent provides the concrete agent implementations of the
// composition model: leaf agents that do the actual work (tool calls, model
// calls, state writes) and the three combinators that arrange them into
// pipelines.
//
//   - SequentialAgent runs children in order; each child observes every
//     predecessor's merged state before it starts.
//   - ParallelAgent fans children out over a frozen snapshot, each writing
//     into its own namespace, and merges the survivors at the barrier.
//   - LoopAgent alternates a generator and a critic until the convergence
//     predicate accepts a candidate or the iteration budget runs out.
//
// Combinators implement core.Agent themselves, so arbitrary trees compose:
// a parallel stage inside a sequence, a loop as a sequence step, and so on.
package agent

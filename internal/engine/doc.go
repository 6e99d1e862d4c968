// Package engine implements the dataflow executor.
//
// The executor advances a FlowInstance by running every builder that is both
// triggered (consumes a key that changed) and ready (all consumed keys are
// present), in generations, until the flow's target key is freshly produced
// or a generation produces nothing new.
//
// ARCHITECTURE:
//
// Generation Sweep:
// One generation is a full pass over the leveled ExecutionGraph, levels in
// order, builders in declaration order within a level. Output of a builder
// is merged into the working DataSet immediately, so later builders in the
// same sweep can consume it.
//
//  1. Clone the instance's durable DataSet, merge the Delta
//  2. Active set = Delta keys
//  3. Sweep: fire triggered, ready, not-yet-fired builders
//  4. Stop if the target key was generated, or nothing non-transient was
//  5. Otherwise active set = newly generated keys, sweep again
//  6. Strip transient keys and store the result back on the instance
//
// Firing history is per run. The ExecutionGraph and FlowDefinition are never
// mutated, so one definition can back any number of instances and runs.
//
// CRITICAL PATTERNS:
//
// Copy-on-entry: the durable DataSet is only replaced after a successful
// run. A failing builder aborts the run and leaves it untouched.
//
// Best-effort observers: ExecutionListener errors and panics are logged and
// swallowed; they never change the outcome of the builder being observed.
//
// Deterministic scheduling: no goroutines, no randomness. The same
// definition, DataSet and Delta always fire the same builders in the same
// order.
package engine

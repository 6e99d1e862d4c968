// Package ir provides the canonical data model for dataflow.
//
// This package holds value and model types only. All other internal packages
// import ir; ir imports nothing internal, so it stays the foundational layer
// with no circular dependencies.
//
// Key design constraints:
//   - NO float types in payloads - use Int (int64) for numbers
//   - Data keys are non-empty; a DataSet holds at most one Data per key
//   - Static graph types (ExecutionGraph, FlowDefinition) are never mutated
//     by execution; all run state lives with the executor
//   - All JSON tags use snake_case
package ir

// Package builders provides the built-in builder kinds that CUE flow
// definitions refer to by name, and a factory that resolves a flow's
// builders to them.
//
// Kinds:
//   - copy: passes its single input through under the produced key
//   - merge: merges object inputs in consumes order (later keys win)
//   - collect: emits the inputs' values as an array, in consumes order
//   - const: emits params.value
//   - require: passes its first input through, failing with a reported
//     error listing any params.fields missing from it
package builders

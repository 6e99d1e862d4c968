// Package harness provides conformance testing for dataflow definitions.
//
// The harness compiles a flow from CUE, feeds a scenario's deltas to one
// instance through engine.Runner backed by an in-memory store, and checks
// each run's outcome, the recorded trace and the final DataSet.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	flow_dir: ../flows            # relative to the scenario file
//	flow: order-intake
//	instance: order-1             # optional, default instance-1
//	steps:
//	  - delta: { order: { sku: "A-1", qty: 2 } }
//	    expect:
//	      builders: [validate]
//	      generations: 1
//	  - delta: { order: { sku: "A-1" } }
//	    expect:
//	      builders: []
//	      error: { code: BUILDER_EXECUTION_ERROR, kind: reported, builder: validate }
//	assertions:
//	  - type: trace_order
//	    builders: [validate, quote]
//	  - type: dataset_value
//	    key: quote
//	    value: { sku: "A-1", qty: 2 }
//
// # Assertion Types
//
// The following assertion types are supported:
//
//   - trace_order: Verifies builders first completed in the specified order
//   - trace_count: Verifies a builder completed exactly N times
//   - dataset_contains: Verifies a key is in the final stored DataSet
//   - dataset_absent: Verifies a key is not (transients, failed runs)
//   - dataset_value: Verifies a key's exact final value
//
// # Deterministic Testing
//
// Run ids come from testutil.SequentialRunIDs and run seq numbers from the
// store's logical clock, so the same scenario always produces a
// byte-identical trace for golden snapshot comparison.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/order_intake.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !result.Pass {
//	    for _, msg := range result.Errors {
//	        log.Println(msg)
//	    }
//	}
package harness

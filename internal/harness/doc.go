// Package harness runs binding conformance scenarios.
//
// A scenario seeds a fresh store, drives bindings through a list of
// steps and asserts on their states. After every step the engine is
// settled and every open binding is snapshotted; the snapshots form the
// trace compared against golden files.
//
// # Scenario Format
//
//	name: point_write_echo
//	description: "A write shows up before the next poll"
//	seed:
//	  - id: "@sp"
//	    point: "m:"
//	    writable: "m:"
//	    curVal: "n:70 °F"
//	env:
//	  writeLevel: 16
//	  who: harness
//	steps:
//	  - op: point
//	    name: sp
//	    id: "@sp"
//	  - op: write
//	    name: sp
//	    value: "n:72 °F"
//	    level: 8
//	  - op: poll
//	assertions:
//	  - binding: sp
//	    value: "n:72 °F"
//	    updates: 1
//
// # Determinism
//
// Subscriptions run on a manual clock and only poll on poll steps.
// Generated watch labels come from a sequential generator ("watch-h-1",
// "watch-h-2", ...) and the environment id is fixed, so traces are
// identical across runs.
package harness

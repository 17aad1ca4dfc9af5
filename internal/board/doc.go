// Package board loads binding boards: directories of CUE files that
// declare named bindings.
//
// A board file declares bindings under the top-level "binding" struct:
//
//	binding: zoneTemps: {
//		filter: "point and temp"
//		live:   true
//		poll:   "2s"
//	}
//
//	binding: ahu: {
//		ids: ["@ahu", "@ahu-sp"]
//		label: "ahu panel"
//	}
//
// Each binding names exactly one of ids, filter or expr. Live bindings
// become watches; the rest are one-shot reads.
package board

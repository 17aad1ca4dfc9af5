// Package haystack models Project Haystack values: markers, refs, numbers
// with units, dicts and grids.
//
// Three encodings are provided:
//   - Hayson (MarshalHayson / UnmarshalHayson), the JSON wire form used by
//     the store and the CLI
//   - JSON v3 string prefixes (FromNative / ToNative), used by YAML seed
//     and scenario files where "m:" reads better than {"_kind":"marker"}
//   - Canonical JSON (MarshalCanonical), used only for identity: the keys
//     that decide whether a binding's dependencies changed and whether a
//     polled grid differs from the last one
//
// Value is sealed. Type switches over it are exhaustive within this module.
package haystack

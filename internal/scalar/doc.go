// Package scalar derives a single live value, and a writer for it, from a
// Haystack record.
//
// Point tracks the curVal of a point record and writes through the
// server's priority array. Tag tracks a named tag and writes it with a
// tag commit; the written tag may differ from the one read. Dispatch
// picks between them from the record's _resolve metadata and passes any
// other value through untouched.
//
// Both variants sit on a binding.Watcher over the record's id. Until the
// first subscription result lands they report the input record itself,
// so callers always have something plausible to show. A write that the
// server accepts is echoed into the watcher's data at once instead of
// waiting for the next poll.
package scalar

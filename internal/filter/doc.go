// Package filter parses and evaluates Project Haystack filters such as
// `point and curVal`, `siteRef == @s1 and not his` or
// `equipRef->siteRef->dis == "HQ"`.
//
// The parsed form is a sealed Predicate tree. Match evaluates it against a
// record in memory; package filtersql compiles the subset without "->"
// dereferences to SQLite.
package filter

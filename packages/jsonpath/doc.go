// Package jsonpath resolves JSONPath expressions against JSON documents.
//
// Evaluation walks gjson results, so documents are never fully decoded
// unless a match is consumed. A query yields an ordered list of matches:
//
//	$.items[*].id        every id in items
//	$..token             every "token" key at any depth
//	$.users[?(@.age>30)] users older than 30
//
// Callers in the replay engine only ever consume the first match. That
// convention is explicit here: Matches.First returns the first match and
// whether one existed, so "no match" and "a null/empty first match" stay
// distinguishable.
package jsonpath

// Package assertions decides whether a replayed response is acceptable.
//
// A step may require an exact HTTP status and declare result checks. Each
// check resolves a JSONPath against the parsed body and applies the first
// condition that is set, in this order:
//   - truthy: the path must match and have a non-zero length
//   - min / max: inclusive bounds on the length of the first match
//   - equal: the first match must equal the expected value
//
// A failing check fails the step unless it is warn-only. Malformed bodies
// are checked as an empty object and reported through Report.ParseErr.
package assertions

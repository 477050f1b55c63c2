// Package session loads recorded API traces and exposes them as an ordered
// list of replayable steps.
//
// A trace is a JSON (or YAML) document with a testName and a list of
// testSteps. Each step is either a GraphQL operation or a REST call and may
// declare a resultId to publish its response, result checks, header setters,
// static or hashed headers, repeats and a sleep override. Documents are
// validated against an embedded JSON schema before decoding.
//
// Example:
//
//	s, err := session.Load("dist/steps.json")
//	if err != nil {
//		return err
//	}
//	if err := s.Validate(len(hosts)); err != nil {
//		return err
//	}
package session

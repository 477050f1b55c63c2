// Package substitute produces the final request body for a step.
//
// GraphQL steps overwrite existing variables in a working copy of their
// template with values resolved from earlier results. REST steps apply
// payload changes to a parsed copy of their payload, creating nested fields
// when needed. Neither mode mutates the recorded step.
package substitute

// Package env handles environment variables and value interpolation.
//
// It provides functionality for:
//   - Loading .env files and exporting them to the process environment
//   - {{$VAR}} environment references and {{name}} variables
//   - Helper functions such as {{uuid()}}, {{timestamp()}} and {{now()}}
//   - Resolving hosts, static header values and signing secrets so secrets
//     need not live in recorded traces
package env

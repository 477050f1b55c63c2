// Package capture holds the per-iteration result store.
//
// A step that declares a resultId publishes its parsed response body here
// after its checks pass. Later steps pull values back out with a JSONPath
// expression through Resolve, which enables request chaining:
//
//	store := capture.NewSeededStore(user)
//	store.Put("login", body)
//	token, err := store.Resolve("login", "$.data.login.token")
//
// The store is seeded with the virtual user under the "user" id so traces
// can reference "$.user.email" and similar fields.
package capture

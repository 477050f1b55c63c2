// Package users provides the synthetic identities that stand in for the
// recorded user during replay. Users are either generated with random names
// or loaded from a JSON file and handed out round-robin.
package users

// Package headers builds the header list for each replayed request.
//
// A Set lives for one virtual-user iteration. Header setters append to it
// after a response arrives; step-local headers, including HMAC-signed
// ones, are added per request only.
package headers

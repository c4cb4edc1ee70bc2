// Package detection contains the domain types produced by the remote
// sleep classifier: Status, Confidence, Result and the bounded History of
// recent results shown to the user.
package detection

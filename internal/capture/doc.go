// Package capture produces still frames for classification.
//
// A Source yields raw image bytes: FileSource reads a user-provided file and
// SnapshotSource fetches a still from a camera's HTTP snapshot endpoint.
// Encode normalises any frame into the base64 JPEG data URI the classifier
// accepts, downscaling it on the way.
package capture

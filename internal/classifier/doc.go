// Package classifier is the client of the remote sleep classifier.
//
// The classifier accepts POST /detect with a JSON body {"image": "..."} and
// answers {"status", "confidence", "details"}. The package also defines the
// wire types shared with the detector server.
package classifier

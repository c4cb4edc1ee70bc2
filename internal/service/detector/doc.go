// Package detector implements the sleepwatch-detector command: an HTTP
// service exposing POST /detect backed by a vision model.
package detector

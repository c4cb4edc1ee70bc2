// Package watcher implements the sleepwatch-watcher command.
//
// The Loop captures a frame on every poll tick, submits it to the remote
// classifier and hands the verdict to the Controller, which starts or stops
// the alarm engine, records the bounded detection history and notifies
// presenters. The Controller also serves the manual stop and test-sound
// actions of the gRPC and HTTP control surfaces.
package watcher

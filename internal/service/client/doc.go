// Package client implements the sleepwatch-alarm-off and sleepwatch-alarm-test
// commands.
//
// The command connects to the watcher's control endpoint, pushes a stop or
// test-sound request on behalf of the current user and retries until the
// watcher answers.
package client

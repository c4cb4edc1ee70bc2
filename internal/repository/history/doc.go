// Package history implements persistence for the detection history.
//
// The FileRepository stores and loads recent detection results as JSON on
// disk and exposes a Repository interface that the watcher service depends on.
package history

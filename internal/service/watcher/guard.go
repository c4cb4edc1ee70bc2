package watcher

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mitchellh/go-ps"
)

// ErrAlreadyRunning is returned when another watcher owns the audio device.
var ErrAlreadyRunning = errors.New("another watcher is already running")

// processLister enumerates running processes.
type processLister func() ([]ps.Process, error)

// ensureSingleInstance fails when another process runs the same executable.
func ensureSingleInstance(list processLister, executable string, selfPID int) error {
	processList, err := list()
	if err != nil {
		return fmt.Errorf("list processes: %w", err)
	}

	for _, process := range processList {
		if process.Pid() == selfPID {
			continue
		}

		if process.Executable() != executable {
			continue
		}

		return fmt.Errorf("%w (pid %d)", ErrAlreadyRunning, process.Pid())
	}

	return nil
}

// currentExecutable returns the base name ps reports for this process.
func currentExecutable() string {
	self, err := ps.FindProcess(os.Getpid())
	if err == nil && self != nil {
		return self.Executable()
	}

	return filepath.Base(os.Args[0])
}

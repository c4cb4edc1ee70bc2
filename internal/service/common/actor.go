//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"errors"
	"fmt"
	"os"
	"os/user"
	"strings"

	domain "github.com/oshokin/sleepwatch/internal/domain/alarm"
)

// usernameEnvKeys are consulted in order when the account database has no entry.
var usernameEnvKeys = []string{"USER", "USERNAME", "LOGNAME"}

var errEmptyUsername = errors.New("username is empty")

// actorLookup holds the system queries used to name the actor.
type actorLookup struct {
	// hostname returns the machine name.
	hostname func() (string, error)
	// username returns the account name of the current process.
	username func() (string, error)
	// getenv reads the login environment.
	getenv func(string) string
}

// systemLookup queries the running host.
var systemLookup = actorLookup{
	hostname: os.Hostname,
	username: func() (string, error) {
		current, err := user.Current()
		if err != nil {
			return "", err
		}

		return current.Username, nil
	},
	getenv: os.Getenv,
}

// DetectActor names the machine and account an alarm-off or alarm-test
// request is sent from.
func DetectActor() (*domain.Actor, error) {
	return systemLookup.detect()
}

func (l actorLookup) detect() (*domain.Actor, error) {
	hostname, err := l.hostname()
	if err != nil {
		return nil, fmt.Errorf("hostname: %w", err)
	}

	username, err := l.currentUsername()
	if err != nil {
		return nil, fmt.Errorf("current user: %w", err)
	}

	return &domain.Actor{
		Hostname: hostname,
		Username: username,
	}, nil
}

// currentUsername prefers the account database and falls back to the login
// environment, which is all some containers have. A Windows DOMAIN\ prefix is dropped.
func (l actorLookup) currentUsername() (string, error) {
	name, err := l.username()
	if err == nil && name != "" {
		if i := strings.LastIndexByte(name, '\\'); i >= 0 {
			name = name[i+1:]
		}

		return name, nil
	}

	for _, key := range usernameEnvKeys {
		if value := l.getenv(key); value != "" {
			return value, nil
		}
	}

	if err == nil {
		err = errEmptyUsername
	}

	return "", err
}

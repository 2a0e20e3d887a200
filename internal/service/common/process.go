//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mitchellh/go-ps"
)

// FindOtherInstance looks for another running process with the same executable name
// as the current one. It returns the pid of the first match or zero.
func FindOtherInstance() (int, error) {
	executable, err := os.Executable()
	if err != nil {
		return 0, fmt.Errorf("resolve executable: %w", err)
	}

	return findProcess(commName(filepath.Base(executable)), os.Getpid())
}

// maxCommLength is the length the Linux kernel truncates process names to.
const maxCommLength = 15

// commName truncates name the way /proc/<pid>/stat reports it.
func commName(name string) string {
	if len(name) > maxCommLength {
		return name[:maxCommLength]
	}

	return name
}

// findProcess returns the pid of a process named name other than self.
func findProcess(name string, self int) (int, error) {
	processList, err := ps.Processes()
	if err != nil {
		return 0, fmt.Errorf("list processes: %w", err)
	}

	for _, process := range processList {
		if process.Pid() == self {
			continue
		}

		if process.Executable() == name {
			return process.Pid(), nil
		}
	}

	return 0, nil
}

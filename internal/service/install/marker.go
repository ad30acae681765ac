package install

import (
	"errors"
	"os"
	"strings"
)

// AgentExecutablePrefix is the filename prefix of the versioned agent
// executable inside release archives ("skydrift-agent-v0.0.400" and the
// like). The suffix after the prefix is the installed version marker.
const AgentExecutablePrefix = "skydrift-agent-"

// InstalledVersion derives the installed version marker from the versioned
// executable filename in the target directory. An absent directory or a
// directory without the agent executable yields an empty marker, which is
// treated as "nothing installed".
func InstalledVersion(targetDir string) (string, error) {
	entries, err := os.ReadDir(targetDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}

		return "", err
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		if name := entry.Name(); strings.HasPrefix(name, AgentExecutablePrefix) {
			return strings.TrimPrefix(name, AgentExecutablePrefix), nil
		}
	}

	return "", nil
}

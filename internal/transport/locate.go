package transport

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// CLIPathEnv overrides the executable search when set.
const CLIPathEnv = "CLAUDE_CODE_CLI_PATH"

var searchNames = []string{"claude-code", "claude"}

// fallbackPaths lists the install locations checked after PATH.
func fallbackPaths(home string) []string {
	paths := []string{
		"/usr/local/bin/claude-code",
		"/usr/local/bin/claude",
		"/opt/claude-code/bin/claude-code",
	}
	if home == "" {
		return paths
	}
	return append([]string{
		filepath.Join(home, "bin", "claude-code"),
		filepath.Join(home, "bin", "claude"),
	}, append(paths,
		filepath.Join(home, ".npm-global", "bin", "claude"),
		filepath.Join(home, ".local", "bin", "claude"),
	)...)
}

// Locate resolves the CLI executable. An explicit path wins, then
// CLIPathEnv, then claude-code and claude on PATH, then the usual install
// locations.
func Locate(explicit string) (string, error) {
	if explicit != "" {
		return resolve(explicit)
	}
	if fromEnv := os.Getenv(CLIPathEnv); fromEnv != "" {
		return resolve(fromEnv)
	}

	for _, name := range searchNames {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}

	home, _ := os.UserHomeDir()
	for _, path := range fallbackPaths(home) {
		if isExecutable(path) {
			return path, nil
		}
	}
	return "", NewCLINotFoundError("", nil)
}

// resolve checks a user-supplied path. Bare names are looked up on PATH.
func resolve(path string) (string, error) {
	if !strings.ContainsRune(path, os.PathSeparator) && !strings.ContainsRune(path, '/') {
		found, err := exec.LookPath(path)
		if err != nil {
			return "", NewCLINotFoundError(path, err)
		}
		return found, nil
	}
	if !isExecutable(path) {
		return "", NewCLINotFoundError(path, errors.New("not an executable file"))
	}
	return path, nil
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	return info.Mode().Perm()&0o111 != 0
}

// describe formats a resolved command line for debug logs.
func describe(path string, args []string) string {
	return fmt.Sprintf("%s %s", path, strings.Join(args, " "))
}

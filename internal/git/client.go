// Package git shells out to the git binary for the changed-file diffs the
// incremental gate consumes.
package git

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// IClient is the interface the gate depends on; it is mocked in tests.
type IClient interface {
	ChangedFiles(directory, sinceRef string) ([]string, error)
	HeadSHA(directory string) (string, error)
}

// Client runs git commands in a working directory.
type Client struct{}

// NewClient creates a git client.
func NewClient() *Client {
	return &Client{}
}

func (c *Client) run(dir string, args ...string) (string, error) {
	var outBuf, errBuf bytes.Buffer
	cmd := exec.Command("git", args...)
	if dir != "" {
		cmd.Dir = dir
	}
	// Enforce no prompting
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0", "GIT_ASKPASS=/bin/true")
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("git %s failed: %w\nStderr: %s", args[0], err, errBuf.String())
	}
	return outBuf.String(), nil
}

// ChangedFiles lists paths changed between sinceRef and the working tree,
// including untracked files.
func (c *Client) ChangedFiles(directory, sinceRef string) ([]string, error) {
	out, err := c.run(directory, "diff", "--name-only", sinceRef)
	if err != nil {
		return nil, err
	}
	files := splitLines(out)

	// Untracked files do not show up in diff output.
	untracked, err := c.run(directory, "ls-files", "--others", "--exclude-standard")
	if err != nil {
		return nil, err
	}
	files = append(files, splitLines(untracked)...)
	return files, nil
}

// HeadSHA returns the current commit hash.
func (c *Client) HeadSHA(directory string) (string, error) {
	out, err := c.run(directory, "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func splitLines(out string) []string {
	var lines []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

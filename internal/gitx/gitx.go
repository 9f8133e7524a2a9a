// Package gitx provides the git subprocess helpers used by watch reconciliation.
package gitx

import (
	"bytes"
	"fmt"
	"os/exec"
	"strings"
)

// ChangeType represents how a file changed between two repository states
type ChangeType string

const (
	ChangeAdded    ChangeType = "added"
	ChangeModified ChangeType = "modified"
	ChangeDeleted  ChangeType = "deleted"
	ChangeRenamed  ChangeType = "renamed"
)

// ChangedFile represents one path reported by a git diff
type ChangedFile struct {
	Path       string     // New path (or current path if not renamed)
	OldPath    string     // Original path for renames
	ChangeType ChangeType // Type of change
}

// Client runs git commands rooted at a single repository.
type Client struct {
	dir string
}

// NewClient creates a git client for the given repository root.
func NewClient(dir string) *Client {
	return &Client{dir: dir}
}

// IsRepository reports whether the client's directory is inside a git repository.
func (c *Client) IsRepository() bool {
	cmd := exec.Command("git", "rev-parse", "--git-dir")
	cmd.Dir = c.dir
	return cmd.Run() == nil
}

// RepoRoot returns the top-level directory of the repository.
func (c *Client) RepoRoot() (string, error) {
	out, err := c.output("rev-parse", "--show-toplevel")
	if err != nil {
		return "", fmt.Errorf("not a git repository: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// Head returns the current HEAD commit SHA, or an error if the repository
// has no commits yet.
func (c *Client) Head() (string, error) {
	out, err := c.output("rev-parse", "HEAD")
	if err != nil {
		return "", fmt.Errorf("failed to resolve HEAD: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// DiffNames returns the files changed between two commits.
// Output is parsed from git diff --name-status -z; NUL separation keeps
// paths with spaces intact.
func (c *Client) DiffNames(since, until string) ([]ChangedFile, error) {
	out, err := c.outputBytes("diff", "--name-status", "-z", since, until)
	if err != nil {
		return nil, fmt.Errorf("git diff %s..%s failed: %w", since, until, err)
	}
	return parseDiffNUL(out), nil
}

// UncommittedChanges returns staged plus unstaged modifications and untracked
// files. Errors from individual subcommands are tolerated; a partially
// populated result is better than none during reconciliation.
func (c *Client) UncommittedChanges() []ChangedFile {
	var changes []ChangedFile

	if out, err := c.outputBytes("diff", "--name-status", "-z", "--cached"); err == nil {
		changes = append(changes, parseDiffNUL(out)...)
	}
	if out, err := c.outputBytes("diff", "--name-status", "-z"); err == nil {
		changes = append(changes, parseDiffNUL(out)...)
	}
	if out, err := c.outputBytes("ls-files", "-z", "--others", "--exclude-standard"); err == nil {
		for _, p := range bytes.Split(out, []byte{0}) {
			if len(p) > 0 {
				changes = append(changes, ChangedFile{Path: string(p), ChangeType: ChangeAdded})
			}
		}
	}

	return Deduplicate(changes)
}

// Deduplicate removes duplicate paths, keeping the last occurrence.
func Deduplicate(changes []ChangedFile) []ChangedFile {
	seen := make(map[string]int)
	var result []ChangedFile

	for _, ch := range changes {
		if idx, ok := seen[ch.Path]; ok {
			result[idx] = ch
		} else {
			seen[ch.Path] = len(result)
			result = append(result, ch)
		}
	}

	return result
}

// parseDiffNUL parses git diff --name-status -z output.
// Format: STATUS\0PATH\0, or STATUS\0OLDPATH\0NEWPATH\0 for renames/copies.
func parseDiffNUL(output []byte) []ChangedFile {
	var changes []ChangedFile

	parts := bytes.Split(output, []byte{0})

	for i := 0; i < len(parts); {
		if len(parts[i]) == 0 {
			i++
			continue
		}

		status := string(parts[i])
		if i+1 >= len(parts) {
			break
		}

		isRenameOrCopy := strings.HasPrefix(status, "R") || strings.HasPrefix(status, "C")

		var oldPath, newPath string
		if isRenameOrCopy {
			oldPath = string(parts[i+1])
			i += 2
			if i >= len(parts) {
				break // malformed trailing record
			}
			newPath = string(parts[i])
			i++
		} else {
			newPath = string(parts[i+1])
			oldPath = newPath
			i += 2
		}

		switch {
		case status == "A":
			changes = append(changes, ChangedFile{Path: newPath, ChangeType: ChangeAdded})
		case status == "D":
			changes = append(changes, ChangedFile{Path: oldPath, ChangeType: ChangeDeleted})
		case strings.HasPrefix(status, "R"):
			changes = append(changes, ChangedFile{Path: newPath, OldPath: oldPath, ChangeType: ChangeRenamed})
		case strings.HasPrefix(status, "C"):
			changes = append(changes, ChangedFile{Path: newPath, ChangeType: ChangeAdded})
		default:
			// M and anything unrecognized count as modifications
			changes = append(changes, ChangedFile{Path: newPath, ChangeType: ChangeModified})
		}
	}

	return changes
}

func (c *Client) output(args ...string) (string, error) {
	out, err := c.outputBytes(args...)
	return string(out), err
}

func (c *Client) outputBytes(args ...string) ([]byte, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = c.dir
	return cmd.Output()
}

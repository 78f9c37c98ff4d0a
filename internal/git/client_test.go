package git

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// initRepo creates a throwaway repository with one commit.
func initRepo(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git binary not available")
	}
	dir := t.TempDir()
	for _, args := range [][]string{
		{"init"},
		{"config", "user.email", "test@example.com"},
		{"config", "user.name", "Test"},
	} {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		require.NoError(t, cmd.Run(), "git %v", args)
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pom.xml"), []byte("<project/>"), 0o644))
	for _, args := range [][]string{
		{"add", "."},
		{"commit", "-m", "initial"},
	} {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		require.NoError(t, cmd.Run(), "git %v", args)
	}
	return dir
}

func TestHeadSHA(t *testing.T) {
	dir := initRepo(t)
	sha, err := NewClient().HeadSHA(dir)
	require.NoError(t, err)
	assert.Len(t, sha, 40)
}

func TestChangedFiles(t *testing.T) {
	dir := initRepo(t)
	c := NewClient()

	head, err := c.HeadSHA(dir)
	require.NoError(t, err)

	files, err := c.ChangedFiles(dir, head)
	require.NoError(t, err)
	assert.Empty(t, files)

	// Modify a tracked file and add an untracked one.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pom.xml"), []byte("<project><modelVersion/></project>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("readme"), 0o644))

	files, err = c.ChangedFiles(dir, head)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"pom.xml", "README.md"}, files)
}

func TestChangedFilesBadRef(t *testing.T) {
	dir := initRepo(t)
	_, err := NewClient().ChangedFiles(dir, "not-a-ref")
	assert.Error(t, err)
}

package detector

import (
	"context"
	"errors"
	"io/fs"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"

	"github.com/vietddude/errwatch/internal/core/domain"
)

// Check is one independent detection pass.
type Check interface {
	Name() string
	Run(ctx context.Context) ([]domain.DetectedError, error)
}

// CommandRunner executes an external analysis tool and returns its stdout.
type CommandRunner interface {
	Run(ctx context.Context, dir string, name string, args ...string) ([]byte, error)
}

// ExecRunner runs tools as child processes.
type ExecRunner struct{}

// Run returns stdout even when the tool exits non-zero, since type checkers
// and linters signal findings through their exit code.
func (ExecRunner) Run(ctx context.Context, dir string, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && len(out) > 0 {
		return out, nil
	}
	return out, err
}

// SourceTree enumerates source files under the watched roots.
type SourceTree struct {
	Roots       []string
	Extensions  []string
	ExcludeDirs []string
}

// Files walks every root and returns matching paths. Unreadable entries
// are skipped.
func (t SourceTree) Files(ctx context.Context) ([]string, error) {
	var files []string
	for _, root := range t.Roots {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if err != nil {
				if d != nil && d.IsDir() {
					return fs.SkipDir
				}
				return nil
			}
			if d.IsDir() {
				if path != root && slices.Contains(t.ExcludeDirs, d.Name()) {
					return fs.SkipDir
				}
				return nil
			}
			if t.matchesExtension(path) {
				files = append(files, path)
			}
			return nil
		})
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return files, err
		}
	}
	return files, nil
}

func (t SourceTree) matchesExtension(path string) bool {
	if len(t.Extensions) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(path))
	return slices.Contains(t.Extensions, ext)
}

func splitCommand(cmd []string) (string, []string, bool) {
	if len(cmd) == 0 || cmd[0] == "" {
		return "", nil, false
	}
	return cmd[0], cmd[1:], true
}

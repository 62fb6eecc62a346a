// Package task models the units of work fed to the orchestrator: ordered
// prompt files whose content is treated as an opaque payload.
package task

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Task identifies one unit of work. Immutable after creation.
type Task struct {
	// Path is the source prompt file.
	Path string

	// BaseName is the derived identifier used in all artifact filenames.
	BaseName string

	// Index is the 1-based position in the configured task list.
	Index int
}

// New builds a Task from a prompt file path and its 1-based index.
func New(path string, index int) Task {
	base := filepath.Base(path)
	return Task{
		Path:     path,
		BaseName: strings.TrimSuffix(base, filepath.Ext(base)),
		Index:    index,
	}
}

// Discover builds the ordered task list for promptDir. When a manifest file
// exists in the directory its ordering is authoritative; otherwise all .md
// files are taken in lexical order.
func Discover(promptDir, manifestName string) ([]Task, error) {
	manifestPath := filepath.Join(promptDir, manifestName)
	if _, err := os.Stat(manifestPath); err == nil {
		names, err := LoadManifest(manifestPath)
		if err != nil {
			return nil, err
		}
		tasks := make([]Task, 0, len(names))
		for i, name := range names {
			tasks = append(tasks, New(filepath.Join(promptDir, name), i+1))
		}
		return tasks, nil
	}

	entries, err := os.ReadDir(promptDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompt dir %s: %w", promptDir, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".md" {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	tasks := make([]Task, 0, len(names))
	for i, name := range names {
		tasks = append(tasks, New(filepath.Join(promptDir, name), i+1))
	}
	return tasks, nil
}

// Validate checks that every task's prompt file exists. A missing file is a
// fatal precondition failure: the batch must not start.
func Validate(tasks []Task) error {
	for _, t := range tasks {
		info, err := os.Stat(t.Path)
		if err != nil {
			return fmt.Errorf("task %d (%s): prompt file missing: %w", t.Index, t.BaseName, err)
		}
		if info.IsDir() {
			return fmt.Errorf("task %d (%s): %s is a directory, not a prompt file", t.Index, t.BaseName, t.Path)
		}
	}
	return nil
}

// CheckFilterIndex validates a 1-based single-task filter against the list.
// Zero means no filter.
func CheckFilterIndex(tasks []Task, index int) error {
	if index == 0 {
		return nil
	}
	if index < 1 || index > len(tasks) {
		return fmt.Errorf("prompt index must be 1..%d, got %d", len(tasks), index)
	}
	return nil
}

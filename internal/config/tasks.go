package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

var ErrNoTasks = errors.New("task file lists no downloads")

// Task is one entry of a batch file.
type Task struct {
	URL      string            `yaml:"-"`
	Dir      string            `yaml:"dir,omitempty"`
	FileName string            `yaml:"filename,omitempty"`
	Threads  int               `yaml:"threads,omitempty"`
	Force    bool              `yaml:"force,omitempty"`
	Resume   *bool             `yaml:"resume,omitempty"`
	Priority int               `yaml:"priority,omitempty"`
	Headers  map[string]string `yaml:"headers,omitempty"`
}

// ShouldResume reports whether prior progress may be reused. Resuming is on unless disabled.
func (t Task) ShouldResume() bool {
	return t.Resume == nil || *t.Resume
}

type taskFile struct {
	Download map[string]*Task `yaml:"download"`
}

// LoadTasks parses a batch file of the form
//
//	download:
//	  https://example.com/a.iso:
//	    dir: /data
//	    threads: 8
//
// Tasks come back ordered by descending priority, then by URL.
func LoadTasks(path string) ([]Task, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var f taskFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	if len(f.Download) == 0 {
		return nil, ErrNoTasks
	}

	tasks := make([]Task, 0, len(f.Download))

	for raw, t := range f.Download {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return nil, fmt.Errorf("task %q: not an http(s) URL", raw)
		}

		if t == nil {
			t = &Task{}
		}

		if t.Threads < 0 {
			return nil, fmt.Errorf("task %q: %w", raw, ErrInvalidThreads)
		}

		t.URL = raw
		tasks = append(tasks, *t)
	}

	sort.Slice(tasks, func(i, j int) bool {
		if tasks[i].Priority != tasks[j].Priority {
			return tasks[i].Priority > tasks[j].Priority
		}

		return tasks[i].URL < tasks[j].URL
	})

	return tasks, nil
}

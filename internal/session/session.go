// Package session provides execution contexts for the resolver: a plain value
// for callers that already know the project, and one derived from a Go
// module's go.mod.
package session

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"golang.org/x/mod/modfile"
	"golang.org/x/mod/module"

	"buildrecorder/internal/types"
)

// Session is an immutable snapshot of a build run.
type Session struct {
	ProjectName string
	Started     time.Time
}

// New creates a Session for the named project started at started.
func New(projectName string, started time.Time) *Session {
	return &Session{ProjectName: projectName, Started: started}
}

// TopLevelProjectName returns the project name.
func (s *Session) TopLevelProjectName() string {
	return s.ProjectName
}

// StartTime returns the session start time.
func (s *Session) StartTime() time.Time {
	return s.Started
}

// FromModule reads dir/go.mod and names the session after the last element of
// the module path, ignoring a major version suffix: "github.com/acme/widget/v2"
// yields "widget".
func FromModule(dir string, started time.Time) (*Session, error) {
	gomod := filepath.Join(dir, "go.mod")
	data, err := os.ReadFile(gomod)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeExecutionContext, "reading "+gomod, err)
	}

	modulePath := modfile.ModulePath(data)
	if modulePath == "" {
		return nil, types.NewAppError(types.ErrCodeExecutionContext,
			fmt.Sprintf("%s has no module directive", gomod), nil)
	}

	return New(ProjectName(modulePath), started), nil
}

// ProjectName derives a display name from a module path. Both "/v2" and
// gopkg.in ".v3" major version suffixes are dropped.
func ProjectName(modulePath string) string {
	prefix, _, ok := module.SplitPathVersion(modulePath)
	if !ok || prefix == "" {
		prefix = modulePath
	}
	return path.Base(prefix)
}

package pipeline

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// StageName identifies one step of the pipeline
type StageName string

const (
	StageBuild    StageName = "build"
	StageShaders  StageName = "shaders"
	StageStage    StageName = "stage"
	StageBindings StageName = "bindings"
	StageEditor   StageName = "editor"
)

// Stages lists all stages in the order they run
var Stages = []StageName{StageBuild, StageShaders, StageStage, StageBindings, StageEditor}

// ParseStageName validates a user supplied stage name
func ParseStageName(name string) (StageName, error) {
	for _, stage := range Stages {
		if string(stage) == name {
			return stage, nil
		}
	}
	return "", eris.Errorf("unknown stage %s", name)
}

// Status is the outcome of a stage
type Status string

const (
	StatusSucceeded    Status = "succeeded"
	StatusFailed       Status = "failed"
	StatusSkipped      Status = "skipped"
	StatusNotAvailable Status = "not-available"
)

// StageResult records what happened during a single stage.
type StageResult struct {
	Stage    StageName     `json:"stage"`
	Status   Status        `json:"status"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`
	Warnings []string      `json:"warnings,omitempty"`
	// Output is stored separately by the history since it can get rather large
	Output string `json:"-"`
	Kind   Kind   `json:"kind,omitempty"`
	Error  string `json:"error,omitempty"`
}

func (r *StageResult) warn(msg string) {
	r.Warnings = append(r.Warnings, msg)
}

// Report summarizes a pipeline run
type Report struct {
	ID       string         `json:"id"`
	Started  time.Time      `json:"started"`
	Finished time.Time      `json:"finished"`
	Stages   []*StageResult `json:"stages"`
	Success  bool           `json:"success"`
}

// Stage returns the result for the given stage or nil if it didn't run.
func (r *Report) Stage(name StageName) *StageResult {
	for _, result := range r.Stages {
		if result.Stage == name {
			return result
		}
	}
	return nil
}

// BuildConfiguration describes a single toolchain invocation.
type BuildConfiguration struct {
	Toolchain string
	Project   string
	Target    string
	// Flags are passed in key order
	Flags map[string]string
	Args  []string
	// TargetSwitch and FlagSwitch are templates such as "/t:{target}" and "/p:{key}={value}"
	TargetSwitch string
	FlagSwitch   string
	WorkDir      string
	Env          []string
	Timeout      time.Duration
}

// Arguments returns the command line passed to the toolchain, excluding the toolchain itself.
func (c BuildConfiguration) Arguments() []string {
	args := make([]string, 0, len(c.Flags)+len(c.Args)+2)
	if c.Project != "" {
		args = append(args, c.Project)
	}

	if c.Target != "" {
		args = append(args, strings.ReplaceAll(c.TargetSwitch, "{target}", c.Target))
	}

	keys := make([]string, 0, len(c.Flags))
	for key := range c.Flags {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		flag := strings.ReplaceAll(c.FlagSwitch, "{key}", key)
		flag = strings.ReplaceAll(flag, "{value}", c.Flags[key])
		args = append(args, flag)
	}

	return append(args, c.Args...)
}

func (c BuildConfiguration) String() string {
	return fmt.Sprintf("%s %s", c.Toolchain, strings.Join(c.Arguments(), " "))
}

// Artifact is a single file copied by the stager
type Artifact struct {
	Name   string
	Source string
	Dest   string
}

// ArtifactManifest lists the artifacts in the order they're copied
type ArtifactManifest []Artifact

// NewManifest maps each file name to a copy from sourceDir to destDir.
func NewManifest(names []string, sourceDir, destDir string) ArtifactManifest {
	manifest := make(ArtifactManifest, len(names))
	for idx, name := range names {
		manifest[idx] = Artifact{
			Name:   name,
			Source: filepath.Join(sourceDir, name),
			Dest:   filepath.Join(destDir, name),
		}
	}
	return manifest
}

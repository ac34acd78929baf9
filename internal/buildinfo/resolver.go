// Package buildinfo resolves the identity and metadata of a build run into a
// types.BuildDescriptor.
//
// Each field is taken from the first non-blank source in a fixed priority
// order: the layered configuration first, then the execution context or the
// clock. Resolution is a single synchronous pass with no retries. It fails
// only when a required value cannot be derived (no build name anywhere, or a
// staged build with an unparsable start time) or when the build tool's
// version cannot be discovered.
package buildinfo

import (
	"log/slog"
	"strconv"
	"strings"
	"time"

	"buildrecorder/internal/config"
	"buildrecorder/internal/types"
)

// Property names used when logging resolved values.
const (
	propBuildName      = "buildInfo.build.name"
	propBuildNumber    = "buildInfo.build.number"
	propBuildStarted   = "buildInfo.build.started"
	propBuildTimestamp = "buildInfo.build.timestamp"
)

// ExecutionContext is a read-only snapshot of the current build run.
type ExecutionContext interface {
	// TopLevelProjectName is the display name of the project being built.
	TopLevelProjectName() string
	// StartTime is when the build session started.
	StartTime() time.Time
}

// BuildTool names the tool that runs the build and how to discover its version.
type BuildTool struct {
	Name     string
	Versions VersionProvider
}

// Resolver turns an execution context and a client configuration into a
// BuildDescriptor. It holds no per-build state and may be reused.
type Resolver struct {
	logger *slog.Logger
	tool   BuildTool
	now    func() time.Time
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithClock overrides the clock used to default the build number.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) {
		r.now = now
	}
}

// NewResolver creates a Resolver that logs resolved properties to logger and
// records tool as the build agent.
func NewResolver(logger *slog.Logger, tool BuildTool, opts ...Option) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Resolver{
		logger: logger,
		tool:   tool,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve builds the descriptor for one build run. On error no descriptor is
// returned; the error is a *types.AppError coded ErrCodeConfiguration or
// ErrCodeDependencyResolution.
func (r *Resolver) Resolve(ec ExecutionContext, cfg config.ClientConfig) (*types.BuildDescriptor, error) {
	info := cfg.Info
	started := ec.StartTime()

	name := firstNonBlank(info.BuildName, ec.TopLevelProjectName())
	number := firstNonBlank(info.BuildNumber, strconv.FormatInt(r.now().UnixMilli(), 10))
	startedText := firstNonBlank(info.BuildStarted, started.Format(types.StartedFormat))
	timestamp := firstNonBlank(info.BuildTimestamp, strconv.FormatInt(started.UnixMilli(), 10))

	if name == "" {
		return nil, types.NewAppError(types.ErrCodeConfiguration,
			"build name is not configured and the execution context has no project name", nil)
	}

	r.logResolvedProperty(propBuildName, name)
	r.logResolvedProperty(propBuildNumber, number)
	r.logResolvedProperty(propBuildStarted, startedText)
	r.logResolvedProperty(propBuildTimestamp, timestamp)

	buildAgent, err := r.buildAgent()
	if err != nil {
		return nil, err
	}

	statuses, err := stagingStatuses(cfg, startedText)
	if err != nil {
		return nil, err
	}

	d := &types.BuildDescriptor{
		Name:      name,
		Number:    number,
		Started:   startedText,
		Timestamp: timestamp,

		URL:         firstNonBlank(info.BuildURL),
		VcsRevision: firstNonBlank(info.VcsRevision),
		VcsURL:      firstNonBlank(info.VcsURL),

		Agent: types.Agent{
			Name:    firstNonBlank(info.AgentName, buildAgent.Name),
			Version: firstNonBlank(info.AgentVersion, buildAgent.Version),
		},
		BuildAgent: buildAgent,

		Principal:            firstNonBlank(info.Principal),
		ArtifactoryPrincipal: firstNonBlank(cfg.Publisher.Name),
		PluginVersion:        firstNonBlank(info.PluginVersion),
		ParentName:           firstNonBlank(info.ParentBuildName),
		ParentNumber:         firstNonBlank(info.ParentBuildNumber),

		Issues:        resolveIssues(info.Issues),
		RunParameters: resolveRunParameters(info.RunParameters),
		Statuses:      statuses,
	}

	vcs := types.Vcs{Revision: d.VcsRevision, URL: d.VcsURL}
	if !vcs.IsEmpty() {
		d.Vcs = []types.Vcs{vcs}
	}

	return d, nil
}

// buildAgent identifies the build tool by its fixed name and discovered version.
func (r *Resolver) buildAgent() (types.BuildAgent, error) {
	if r.tool.Versions == nil {
		return types.BuildAgent{}, types.NewAppError(types.ErrCodeDependencyResolution,
			"could not extract "+r.tool.Name+" version: no version provider configured", nil)
	}
	version, err := r.tool.Versions.Version()
	if err != nil {
		return types.BuildAgent{}, types.NewAppError(types.ErrCodeDependencyResolution,
			"could not extract "+r.tool.Name+" version", err)
	}
	return types.BuildAgent{Name: r.tool.Name, Version: version}, nil
}

// resolveIssues returns nil unless a tracker name is configured. AffectedIssues
// stays nil when the configured set is empty.
func resolveIssues(cfg config.IssuesConfig) *types.Issues {
	trackerName := firstNonBlank(cfg.TrackerName)
	if trackerName == "" {
		return nil
	}
	issues := &types.Issues{
		Tracker: types.IssueTracker{
			Name:    trackerName,
			Version: cfg.TrackerVersion,
		},
		AggregateBuildIssues:   cfg.AggregateBuildIssues,
		AggregationBuildStatus: cfg.AggregationBuildStatus,
	}
	if len(cfg.AffectedIssues) > 0 {
		issues.AffectedIssues = append([]types.Issue(nil), cfg.AffectedIssues...)
	}
	return issues
}

func resolveRunParameters(params config.RunParameters) []types.MatrixParameter {
	if len(params) == 0 {
		return nil
	}
	out := make([]types.MatrixParameter, 0, len(params))
	for _, p := range params {
		out = append(out, types.MatrixParameter{Key: p.Key, Value: p.Value})
	}
	return out
}

func (r *Resolver) logResolvedProperty(key, value string) {
	r.logger.Debug("build info model property resolver: resolved property", "key", key, "value", value)
}

// firstNonBlank returns the first candidate that is not blank after trimming.
// Values are returned verbatim, untrimmed.
func firstNonBlank(candidates ...string) string {
	for _, c := range candidates {
		if strings.TrimSpace(c) != "" {
			return c
		}
	}
	return ""
}

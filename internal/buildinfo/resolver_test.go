package buildinfo

import (
	"bytes"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"strconv"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"buildrecorder/internal/config"
	"buildrecorder/internal/types"
)

type fakeExecutionContext struct {
	project string
	started time.Time
}

func (f fakeExecutionContext) TopLevelProjectName() string { return f.project }
func (f fakeExecutionContext) StartTime() time.Time        { return f.started }

var (
	sessionStart = time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	fixedNow     = time.Date(2024, 1, 15, 10, 5, 30, 0, time.UTC)
)

func newTestResolver(t *testing.T, versions VersionProvider) *Resolver {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewResolver(logger, BuildTool{Name: "Maven", Versions: versions},
		WithClock(func() time.Time { return fixedNow }))
}

func mavenHome(version string) fstest.MapFS {
	return fstest.MapFS{MavenBuildResource: &fstest.MapFile{Data: []byte("version=" + version + "\n")}}
}

func TestResolve_Defaults(t *testing.T) {
	r := newTestResolver(t, NewResourceVersionProvider(mavenHome("3.9.6"), MavenBuildResource))
	ec := fakeExecutionContext{project: "widget", started: sessionStart}

	d, err := r.Resolve(ec, config.ClientConfig{})
	require.NoError(t, err)

	assert.Equal(t, "widget", d.Name)
	assert.Equal(t, strconv.FormatInt(fixedNow.UnixMilli(), 10), d.Number)
	assert.Equal(t, "2024-01-15T10:00:00.000Z", d.Started)
	assert.Equal(t, strconv.FormatInt(sessionStart.UnixMilli(), 10), d.Timestamp)

	assert.Equal(t, types.BuildAgent{Name: "Maven", Version: "3.9.6"}, d.BuildAgent)
	assert.Equal(t, types.Agent{Name: "Maven", Version: "3.9.6"}, d.Agent)

	assert.Empty(t, d.URL)
	assert.Empty(t, d.Vcs)
	assert.Nil(t, d.Issues)
	assert.Nil(t, d.RunParameters)
	assert.Nil(t, d.Statuses)
}

func TestResolve_ConfiguredValuesWin(t *testing.T) {
	r := newTestResolver(t, NewResourceVersionProvider(mavenHome("3.9.6"), MavenBuildResource))
	ec := fakeExecutionContext{project: "widget", started: sessionStart}
	cfg := config.ClientConfig{
		Info: config.InfoConfig{
			BuildName:         "nightly",
			BuildNumber:       "42",
			BuildStarted:      "2024-01-14T23:00:00.000+0000",
			BuildTimestamp:    "1705273200000",
			BuildURL:          "https://ci.example.com/job/nightly/42",
			VcsRevision:       "abc123",
			VcsURL:            "https://github.com/acme/widget.git",
			Principal:         "jenkins",
			ParentBuildName:   "upstream",
			ParentBuildNumber: "7",
			AgentName:         "Jenkins",
			AgentVersion:      "2.440",
			PluginVersion:     "3.6.1",
		},
		Publisher: config.PublisherConfig{Name: "deployer"},
	}

	d, err := r.Resolve(ec, cfg)
	require.NoError(t, err)

	assert.Equal(t, "nightly", d.Name)
	assert.Equal(t, "42", d.Number)
	assert.Equal(t, "2024-01-14T23:00:00.000+0000", d.Started)
	assert.Equal(t, "1705273200000", d.Timestamp)
	assert.Equal(t, "https://ci.example.com/job/nightly/42", d.URL)
	assert.Equal(t, "abc123", d.VcsRevision)
	assert.Equal(t, "https://github.com/acme/widget.git", d.VcsURL)
	assert.Equal(t, []types.Vcs{{Revision: "abc123", URL: "https://github.com/acme/widget.git"}}, d.Vcs)
	assert.Equal(t, "jenkins", d.Principal)
	assert.Equal(t, "deployer", d.ArtifactoryPrincipal)
	assert.Equal(t, "3.6.1", d.PluginVersion)
	assert.Equal(t, "upstream", d.ParentName)
	assert.Equal(t, "7", d.ParentNumber)

	assert.Equal(t, types.Agent{Name: "Jenkins", Version: "2.440"}, d.Agent)
	assert.Equal(t, types.BuildAgent{Name: "Maven", Version: "3.9.6"}, d.BuildAgent)
}

func TestResolve_BlankConfiguredValuesFallBack(t *testing.T) {
	r := newTestResolver(t, NewResourceVersionProvider(mavenHome("3.9.6"), MavenBuildResource))
	ec := fakeExecutionContext{project: "widget", started: sessionStart}
	cfg := config.ClientConfig{Info: config.InfoConfig{
		BuildName:   "   ",
		BuildNumber: "\t",
		AgentName:   " ",
	}}

	d, err := r.Resolve(ec, cfg)
	require.NoError(t, err)

	assert.Equal(t, "widget", d.Name)
	assert.Equal(t, strconv.FormatInt(fixedNow.UnixMilli(), 10), d.Number)
	assert.Equal(t, "Maven", d.Agent.Name)
}

func TestResolve_BlankNameIsConfigurationError(t *testing.T) {
	r := newTestResolver(t, NewResourceVersionProvider(mavenHome("3.9.6"), MavenBuildResource))

	d, err := r.Resolve(fakeExecutionContext{started: sessionStart}, config.ClientConfig{})
	require.Error(t, err)
	assert.Nil(t, d)
	assert.Equal(t, types.ErrCodeConfiguration, types.CodeOf(err))
}

func TestResolve_PartialVcs(t *testing.T) {
	r := newTestResolver(t, NewResourceVersionProvider(mavenHome("3.9.6"), MavenBuildResource))
	cfg := config.ClientConfig{Info: config.InfoConfig{VcsRevision: "abc123"}}

	d, err := r.Resolve(fakeExecutionContext{project: "widget", started: sessionStart}, cfg)
	require.NoError(t, err)
	assert.Equal(t, []types.Vcs{{Revision: "abc123"}}, d.Vcs)
	assert.Empty(t, d.VcsURL)
}

func TestResolve_ReleaseStaging(t *testing.T) {
	r := newTestResolver(t, NewResourceVersionProvider(mavenHome("3.9.6"), MavenBuildResource))
	ec := fakeExecutionContext{project: "widget", started: time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)}
	cfg := config.ClientConfig{
		Info: config.InfoConfig{
			BuildStarted:   "2024-01-15T10:00:00.000Z",
			ReleaseEnabled: true,
			ReleaseComment: "release candidate",
			Principal:      "jenkins",
		},
		Publisher: config.PublisherConfig{RepoKey: "libs-staging", Username: "alice"},
	}

	d, err := r.Resolve(ec, cfg)
	require.NoError(t, err)
	require.Len(t, d.Statuses, 1)

	status := d.Statuses[0]
	assert.Equal(t, types.StatusStaged, status.Status)
	assert.Equal(t, "libs-staging", status.Repository)
	assert.Equal(t, "release candidate", status.Comment)
	assert.Equal(t, "alice", status.User)
	assert.Equal(t, "jenkins", status.CiUser)
	assert.True(t, status.Timestamp.Equal(sessionStart), "staging timestamp comes from the resolved start time")
}

func TestResolve_ReleaseWithUnparsableStart(t *testing.T) {
	r := newTestResolver(t, NewResourceVersionProvider(mavenHome("3.9.6"), MavenBuildResource))
	cfg := config.ClientConfig{Info: config.InfoConfig{
		BuildStarted:   "not-a-date",
		ReleaseEnabled: true,
	}}

	d, err := r.Resolve(fakeExecutionContext{project: "widget", started: sessionStart}, cfg)
	require.Error(t, err)
	assert.Nil(t, d)
	assert.Equal(t, types.ErrCodeConfiguration, types.CodeOf(err))
	assert.Contains(t, err.Error(), "not-a-date")
}

func TestResolve_UnparsableStartWithoutReleaseIsKept(t *testing.T) {
	r := newTestResolver(t, NewResourceVersionProvider(mavenHome("3.9.6"), MavenBuildResource))
	cfg := config.ClientConfig{Info: config.InfoConfig{BuildStarted: "not-a-date"}}

	d, err := r.Resolve(fakeExecutionContext{project: "widget", started: sessionStart}, cfg)
	require.NoError(t, err)
	assert.Equal(t, "not-a-date", d.Started)
	assert.Nil(t, d.Statuses)
}

func TestResolve_Issues(t *testing.T) {
	affected := config.AffectedIssues{
		{Key: "WID-1", URL: "https://jira.example.com/browse/WID-1", Summary: "Crash on start"},
		{Key: "WID-2"},
	}

	tests := []struct {
		name       string
		issues     config.IssuesConfig
		wantNil    bool
		wantIssues []types.Issue
	}{
		{
			name:    "no tracker name",
			issues:  config.IssuesConfig{TrackerVersion: "9.4", AffectedIssues: affected},
			wantNil: true,
		},
		{
			name:   "tracker without affected issues",
			issues: config.IssuesConfig{TrackerName: "JIRA", TrackerVersion: "9.4"},
		},
		{
			name: "tracker with affected issues",
			issues: config.IssuesConfig{
				TrackerName:            "JIRA",
				TrackerVersion:         "9.4",
				AggregateBuildIssues:   true,
				AggregationBuildStatus: "Released",
				AffectedIssues:         affected,
			},
			wantIssues: []types.Issue(affected),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestResolver(t, NewResourceVersionProvider(mavenHome("3.9.6"), MavenBuildResource))
			cfg := config.ClientConfig{Info: config.InfoConfig{Issues: tt.issues}}

			d, err := r.Resolve(fakeExecutionContext{project: "widget", started: sessionStart}, cfg)
			require.NoError(t, err)

			if tt.wantNil {
				assert.Nil(t, d.Issues)
				return
			}
			require.NotNil(t, d.Issues)
			assert.Equal(t, types.IssueTracker{Name: "JIRA", Version: "9.4"}, d.Issues.Tracker)
			assert.Equal(t, tt.issues.AggregateBuildIssues, d.Issues.AggregateBuildIssues)
			assert.Equal(t, tt.issues.AggregationBuildStatus, d.Issues.AggregationBuildStatus)
			assert.Equal(t, tt.wantIssues, d.Issues.AffectedIssues)
		})
	}
}

func TestResolve_RunParametersKeepOrder(t *testing.T) {
	r := newTestResolver(t, NewResourceVersionProvider(mavenHome("3.9.6"), MavenBuildResource))
	cfg := config.ClientConfig{Info: config.InfoConfig{RunParameters: config.RunParameters{
		{Key: "os", Value: "linux"},
		{Key: "jdk", Value: "17"},
		{Key: "arch", Value: "amd64"},
	}}}

	d, err := r.Resolve(fakeExecutionContext{project: "widget", started: sessionStart}, cfg)
	require.NoError(t, err)
	assert.Equal(t, []types.MatrixParameter{
		{Key: "os", Value: "linux"},
		{Key: "jdk", Value: "17"},
		{Key: "arch", Value: "amd64"},
	}, d.RunParameters)
}

func TestResolve_VersionNotFound(t *testing.T) {
	r := newTestResolver(t, NewChainVersionProvider(MavenVersionProviders(fstest.MapFS{})...))

	d, err := r.Resolve(fakeExecutionContext{project: "widget", started: sessionStart}, config.ClientConfig{})
	require.Error(t, err)
	assert.Nil(t, d)
	assert.Equal(t, types.ErrCodeDependencyResolution, types.CodeOf(err))
	assert.ErrorIs(t, err, ErrResourceNotFound)
}

func TestResolve_UnreadableVersionResource(t *testing.T) {
	tests := []struct {
		name string
		fsys *closeTrackingFS
	}{
		{"read fails", &closeTrackingFS{FS: mavenHome("3.9.6"), readErr: errors.New("input/output error")}},
		{"open denied", &closeTrackingFS{FS: mavenHome("3.9.6"), openErr: fs.ErrPermission}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestResolver(t, NewChainVersionProvider(MavenVersionProviders(tt.fsys)...))

			d, err := r.Resolve(fakeExecutionContext{project: "widget", started: sessionStart}, config.ClientConfig{})
			require.Error(t, err)
			assert.Nil(t, d)
			assert.Equal(t, types.ErrCodeDependencyResolution, types.CodeOf(err))
			assert.False(t, errors.Is(err, ErrResourceNotFound))
			assert.Equal(t, tt.fsys.opened, tt.fsys.closed)
		})
	}
}

func TestResolve_NoVersionProvider(t *testing.T) {
	r := newTestResolver(t, nil)

	_, err := r.Resolve(fakeExecutionContext{project: "widget", started: sessionStart}, config.ClientConfig{})
	require.Error(t, err)
	assert.Equal(t, types.ErrCodeDependencyResolution, types.CodeOf(err))
}

func TestResolve_IsIdempotent(t *testing.T) {
	r := newTestResolver(t, NewResourceVersionProvider(mavenHome("3.9.6"), MavenBuildResource))
	ec := fakeExecutionContext{project: "widget", started: sessionStart}
	cfg := config.ClientConfig{Info: config.InfoConfig{
		RunParameters: config.RunParameters{{Key: "os", Value: "linux"}},
		Issues:        config.IssuesConfig{TrackerName: "JIRA", AffectedIssues: config.AffectedIssues{{Key: "WID-1"}}},
	}}

	first, err := r.Resolve(ec, cfg)
	require.NoError(t, err)
	second, err := r.Resolve(ec, cfg)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestResolve_DescriptorDoesNotAliasConfig(t *testing.T) {
	r := newTestResolver(t, NewResourceVersionProvider(mavenHome("3.9.6"), MavenBuildResource))
	cfg := config.ClientConfig{Info: config.InfoConfig{
		Issues: config.IssuesConfig{TrackerName: "JIRA", AffectedIssues: config.AffectedIssues{{Key: "WID-1"}}},
	}}

	d, err := r.Resolve(fakeExecutionContext{project: "widget", started: sessionStart}, cfg)
	require.NoError(t, err)

	cfg.Info.Issues.AffectedIssues[0].Key = "CHANGED"
	assert.Equal(t, "WID-1", d.Issues.AffectedIssues[0].Key)
}

func TestResolve_LogsResolvedProperties(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	r := NewResolver(logger, BuildTool{Name: "Maven", Versions: NewResourceVersionProvider(mavenHome("3.9.6"), MavenBuildResource)},
		WithClock(func() time.Time { return fixedNow }))

	cfg := config.ClientConfig{Info: config.InfoConfig{BuildNumber: "42"}}
	_, err := r.Resolve(fakeExecutionContext{project: "widget", started: sessionStart}, cfg)
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "key=buildInfo.build.name value=widget")
	assert.Contains(t, out, "key=buildInfo.build.number value=42")
	assert.Contains(t, out, "key=buildInfo.build.started value=2024-01-15T10:00:00.000Z")
	assert.Contains(t, out, "key=buildInfo.build.timestamp value="+strconv.FormatInt(sessionStart.UnixMilli(), 10))
}

func TestNewResolver_NilLoggerUsesDefault(t *testing.T) {
	r := NewResolver(nil, BuildTool{Name: "Maven"})
	assert.NotNil(t, r.logger)
}

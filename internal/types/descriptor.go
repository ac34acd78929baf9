package types

import "time"

// StartedFormat is the layout of BuildDescriptor.Started. It renders UTC as a
// literal "Z" and parses both "Z" and numeric "+0000" style offsets.
const StartedFormat = "2006-01-02T15:04:05.000Z0700"

// StatusStaged is the promotion status recorded for a build published to a
// staging repository.
const StatusStaged = "staged"

// BuildDescriptor is the resolved identity and metadata of a single build run.
// It is produced in one pass by the resolver and never mutated afterwards.
type BuildDescriptor struct {
	Name      string `json:"name"`
	Number    string `json:"number"`
	Started   string `json:"started"`
	Timestamp string `json:"timestamp,omitempty"`

	URL         string `json:"url,omitempty"`
	VcsRevision string `json:"vcsRevision,omitempty"`
	VcsURL      string `json:"vcsUrl,omitempty"`
	Vcs         []Vcs  `json:"vcs,omitempty"`

	Agent      Agent      `json:"agent"`
	BuildAgent BuildAgent `json:"buildAgent"`

	Principal            string `json:"principal,omitempty"`
	ArtifactoryPrincipal string `json:"artifactoryPrincipal,omitempty"`
	PluginVersion        string `json:"artifactoryPluginVersion,omitempty"`
	ParentName           string `json:"parentName,omitempty"`
	ParentNumber         string `json:"parentNumber,omitempty"`

	Issues        *Issues           `json:"issues,omitempty"`
	RunParameters []MatrixParameter `json:"runParameters,omitempty"`
	Statuses      []PromotionStatus `json:"statuses,omitempty"`
}

// Agent identifies the integration that recorded the build.
type Agent struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// BuildAgent identifies the build tool that produced the build.
type BuildAgent struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Vcs is a single version control reference of a build.
type Vcs struct {
	Revision string `json:"revision,omitempty"`
	URL      string `json:"url,omitempty"`
}

// IsEmpty reports whether neither revision nor url is set.
func (v Vcs) IsEmpty() bool {
	return v.Revision == "" && v.URL == ""
}

// IssueTracker names the issue tracking system referenced by a build.
type IssueTracker struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

// Issue is an issue affected by a build. Issues are unique by Key.
type Issue struct {
	Key     string `json:"key"`
	URL     string `json:"url,omitempty"`
	Summary string `json:"summary,omitempty"`
}

// Issues groups the tracker identity and the issues affected by a build.
// A nil AffectedIssues means none were configured; it is never an empty slice.
type Issues struct {
	Tracker                IssueTracker `json:"tracker"`
	AggregateBuildIssues   bool         `json:"aggregateBuildIssues"`
	AggregationBuildStatus string       `json:"aggregationBuildStatus,omitempty"`
	AffectedIssues         []Issue      `json:"affectedIssues,omitempty"`
}

// MatrixParameter is a named run parameter recorded with the build.
type MatrixParameter struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// PromotionStatus marks a build as promoted to a repository at a point in time.
type PromotionStatus struct {
	Status     string    `json:"status"`
	Comment    string    `json:"comment"`
	Repository string    `json:"repository"`
	Timestamp  time.Time `json:"timestamp"`
	User       string    `json:"user,omitempty"`
	CiUser     string    `json:"ciUser,omitempty"`
}

// Package config defines the layered configuration consumed by the build-info
// recorder. Configuration is loaded once per invocation and is read-only
// thereafter.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Build-info properties file -> Dotenv File -> AWS SSM Parameter Store (Lowest)
//
// Missing build-info values are never an error: the resolver applies its own
// defaults. Malformed values (bad URLs, unknown log levels) fail fast.
package config

// Config is the top-level configuration struct.
// Sub-components receive only the specific config subsets they require.
type Config struct {
	Environment string `envconfig:"APP_ENV" default:"local" validate:"oneof=local ci dev staging prod"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	// PropertiesFile names an optional godotenv-format file layered beneath the
	// OS environment. It is consumed by the loader before envconfig runs.
	PropertiesFile string `envconfig:"BUILDINFO_PROPERTIES_FILE"`

	Client    ClientConfig
	BuildTool BuildToolConfig
	Archive   ArchiveConfig
	AWS       AWSConfig

	// Build Metadata (Injected via ldflags, not Env)
	Build BuildInfo
}

// ClientConfig is the subset handed to the resolver: the build info, issue
// tracking and publisher namespaces.
type ClientConfig struct {
	Info      InfoConfig
	Publisher PublisherConfig
}

// InfoConfig holds the build identity overrides. Every field is optional.
type InfoConfig struct {
	BuildName      string `envconfig:"BUILDINFO_BUILD_NAME"`
	BuildNumber    string `envconfig:"BUILDINFO_BUILD_NUMBER"`
	BuildStarted   string `envconfig:"BUILDINFO_BUILD_STARTED"`
	BuildTimestamp string `envconfig:"BUILDINFO_BUILD_TIMESTAMP"`
	BuildURL       string `envconfig:"BUILDINFO_BUILD_URL" validate:"omitempty,url"`

	VcsRevision string `envconfig:"BUILDINFO_VCS_REVISION"`
	VcsURL      string `envconfig:"BUILDINFO_VCS_URL"`

	Principal         string `envconfig:"BUILDINFO_PRINCIPAL"`
	ParentBuildName   string `envconfig:"BUILDINFO_PARENT_BUILD_NAME"`
	ParentBuildNumber string `envconfig:"BUILDINFO_PARENT_BUILD_NUMBER"`

	AgentName     string `envconfig:"BUILDINFO_AGENT_NAME"`
	AgentVersion  string `envconfig:"BUILDINFO_AGENT_VERSION"`
	PluginVersion string `envconfig:"BUILDINFO_PLUGIN_VERSION"`

	ReleaseEnabled bool   `envconfig:"BUILDINFO_RELEASE_ENABLED" default:"false"`
	ReleaseComment string `envconfig:"BUILDINFO_RELEASE_COMMENT"`

	// RunParameters is an ordered "key=value;key2=value2" list.
	RunParameters RunParameters `envconfig:"BUILDINFO_RUN_PARAMETERS"`

	Issues IssuesConfig
}

// IssuesConfig holds the issue tracker integration settings.
type IssuesConfig struct {
	TrackerName            string `envconfig:"BUILDINFO_ISSUES_TRACKER_NAME"`
	TrackerVersion         string `envconfig:"BUILDINFO_ISSUES_TRACKER_VERSION"`
	AggregateBuildIssues   bool   `envconfig:"BUILDINFO_ISSUES_AGGREGATE" default:"false"`
	AggregationBuildStatus string `envconfig:"BUILDINFO_ISSUES_AGGREGATION_STATUS"`

	// AffectedIssues is a "KEY>>URL>>SUMMARY,KEY2>>URL2>>SUMMARY2" list.
	AffectedIssues AffectedIssues `envconfig:"BUILDINFO_ISSUES_AFFECTED"`
}

// PublisherConfig identifies the repository the build is deployed to and the
// human account deploying it.
type PublisherConfig struct {
	Name     string `envconfig:"PUBLISHER_NAME"`
	Username string `envconfig:"PUBLISHER_USERNAME"`
	RepoKey  string `envconfig:"PUBLISHER_REPO_KEY"`
	URL      string `envconfig:"PUBLISHER_URL" validate:"omitempty,url"`
}

// BuildToolConfig locates the build tool whose version is recorded as the
// build agent.
type BuildToolConfig struct {
	Name string `envconfig:"BUILD_TOOL_NAME" default:"Maven" validate:"required"`
	// Home is the tool installation directory; its lib/*.jar archives are
	// searched for version resources.
	Home string `envconfig:"BUILD_TOOL_HOME"`
}

// ArchiveConfig selects where finished descriptors are written. An empty Dir
// and Bucket writes to stdout.
type ArchiveConfig struct {
	Dir    string `envconfig:"ARCHIVE_DIR"`
	Bucket string `envconfig:"ARCHIVE_BUCKET"`
	Prefix string `envconfig:"ARCHIVE_PREFIX" default:"build-info"`
}

// AWSConfig holds AWS regional configuration for SSM and S3.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"us-east-1"`

	// LocalStack Support (Empty in Prod)
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL" validate:"omitempty,url"`
}

// BuildInfo holds build-time metadata of this binary injected via ldflags.
// These values are NOT populated from environment variables.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures to aid debugging.
type ConfigErrorType string

const (
	// ErrSSMResolution indicates a failure when fetching secrets from AWS SSM.
	ErrSSMResolution ConfigErrorType = "SSM_FAILURE"
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure when parsing environment variable values
	// into their target types.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
	// ErrPropertiesFile indicates the named build-info properties file could
	// not be read.
	ErrPropertiesFile ConfigErrorType = "PROPERTIES_FILE"
)

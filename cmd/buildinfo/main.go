// Package main is the build-info recorder CLI.
//
// It loads the layered configuration, derives the execution session from the
// project's go.mod, discovers the build tool version from its installation
// (the home directory itself and every lib/*.jar archive), resolves the build
// descriptor and publishes it to the configured sinks.
//
// Usage:
//
//	buildinfo -project ./ -tool-home /opt/maven
//	BUILDINFO_BUILD_NUMBER=42 ARCHIVE_DIR=out buildinfo
//	ARCHIVE_BUCKET=ci-archive buildinfo -print
//	APP_ENV=ci PUBLISHER_USERNAME_SSM_PARAM=/ci/buildinfo/publisher-username buildinfo -secrets env
//
// The process exits 0 on success. Failures map to the exit status of their
// error code: 2 configuration, 3 tool version discovery, 4 execution context,
// 5 publishing.
package main

import (
	"archive/zip"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"buildrecorder/internal/buildinfo"
	"buildrecorder/internal/config"
	"buildrecorder/internal/publish"
	"buildrecorder/internal/session"
	"buildrecorder/internal/types"
)

// deps holds the collaborators run needs from the outside world.
type deps struct {
	now         func() time.Time
	secrets     config.SecretProvider
	newS3Client func(ctx context.Context, cfg config.AWSConfig) (publish.S3PutClient, error)
}

func defaultDeps() deps {
	return deps{
		now: time.Now,
		// Region and endpoint come from the environment at first use, after the
		// dotenv and properties layers have been applied.
		secrets:     config.NewSSMProvider("", ""),
		newS3Client: newS3Client,
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr, defaultDeps())
	stop()
	os.Exit(code)
}

// run executes one recording and returns the process exit status.
func run(ctx context.Context, args []string, stdout, stderr io.Writer, d deps) int {
	started := d.now().UTC()

	flags := flag.NewFlagSet("buildinfo", flag.ContinueOnError)
	flags.SetOutput(stderr)
	projectDir := flags.String("project", ".", "directory containing the project's go.mod")
	toolHome := flags.String("tool-home", "", "build tool installation directory (overrides BUILD_TOOL_HOME)")
	printToStdout := flags.Bool("print", false, "also write the descriptor to stdout when archiving")
	secretSource := flags.String("secrets", "ssm", "where _SSM_PARAM indirections resolve: ssm or env")
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return types.ErrCodeConfiguration.ExitCode()
	}

	secrets := d.secrets
	switch *secretSource {
	case "ssm":
	case "env":
		secrets = config.NewEnvVarProvider()
	default:
		fmt.Fprintf(stderr, "fatal: unknown secret source %q\n", *secretSource)
		return types.ErrCodeConfiguration.ExitCode()
	}

	cfg, err := config.LoadConfig(secrets)
	if err != nil {
		fmt.Fprintf(stderr, "fatal: loading configuration: %v\n", err)
		return types.ErrCodeConfiguration.ExitCode()
	}
	if *toolHome != "" {
		cfg.BuildTool.Home = *toolHome
	}

	logger := newLogger(cfg.LogLevel, stderr)
	logger.Info("build info recorder starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"build_time", cfg.Build.BuildTime,
	)

	if err := record(ctx, cfg, *projectDir, started, *printToStdout, stdout, logger, d); err != nil {
		code := types.CodeOf(err)
		logger.Error("build info recording failed", "code", code, "error", err)
		return code.ExitCode()
	}
	return 0
}

func record(
	ctx context.Context,
	cfg *config.Config,
	projectDir string,
	started time.Time,
	printToStdout bool,
	stdout io.Writer,
	logger *slog.Logger,
	d deps,
) error {
	sess, err := session.FromModule(projectDir, started)
	if err != nil {
		return err
	}

	filesystems, closeAll, err := openToolFilesystems(cfg.BuildTool.Home)
	if err != nil {
		return err
	}
	defer closeAll()

	resolver := buildinfo.NewResolver(logger, buildinfo.BuildTool{
		Name:     cfg.BuildTool.Name,
		Versions: buildinfo.NewChainVersionProvider(buildinfo.MavenVersionProviders(filesystems...)...),
	})

	descriptor, err := resolver.Resolve(sess, cfg.Client)
	if err != nil {
		return err
	}
	logger.Info("resolved build descriptor",
		"name", descriptor.Name,
		"number", descriptor.Number,
		"build_agent", descriptor.BuildAgent.Name+"/"+descriptor.BuildAgent.Version,
	)

	sink, err := buildSink(ctx, cfg, printToStdout, stdout, logger, d)
	if err != nil {
		return err
	}
	return sink.Publish(ctx, descriptor)
}

// openToolFilesystems returns the tool home followed by each lib/*.jar opened
// as a zip file system. The returned func closes every opened archive.
func openToolFilesystems(home string) ([]fs.FS, func(), error) {
	if home == "" {
		return nil, func() {}, nil
	}

	jars, err := filepath.Glob(filepath.Join(home, "lib", "*.jar"))
	if err != nil {
		return nil, nil, types.NewAppError(types.ErrCodeDependencyResolution, "listing archives in "+home, err)
	}

	filesystems := []fs.FS{os.DirFS(home)}
	var archives []*zip.ReadCloser
	closeAll := func() {
		for _, a := range archives {
			a.Close()
		}
	}
	for _, jar := range jars {
		archive, err := zip.OpenReader(jar)
		if err != nil {
			closeAll()
			return nil, nil, types.NewAppError(types.ErrCodeDependencyResolution, "opening "+jar, err)
		}
		archives = append(archives, archive)
		filesystems = append(filesystems, archive)
	}
	return filesystems, closeAll, nil
}

// buildSink selects the sinks from the archive configuration. Stdout is used
// when nothing else is configured or when explicitly requested.
func buildSink(
	ctx context.Context,
	cfg *config.Config,
	printToStdout bool,
	stdout io.Writer,
	logger *slog.Logger,
	d deps,
) (publish.Sink, error) {
	var sinks []publish.Sink
	if cfg.Archive.Dir != "" {
		sinks = append(sinks, publish.NewFileSink(cfg.Archive.Dir))
	}
	if cfg.Archive.Bucket != "" {
		client, err := d.newS3Client(ctx, cfg.AWS)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeUpstreamUnavailable, "creating S3 client", err)
		}
		s3Sink, err := publish.NewS3Sink(client, cfg.Archive.Bucket, cfg.Archive.Prefix, logger)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "creating S3 sink", err)
		}
		sinks = append(sinks, s3Sink)
	}
	if len(sinks) == 0 || printToStdout {
		sinks = append(sinks, publish.NewWriterSink(stdout))
	}
	if len(sinks) == 1 {
		return sinks[0], nil
	}
	return publish.NewMultiSink(sinks...), nil
}

func newS3Client(ctx context.Context, cfg config.AWSConfig) (publish.S3PutClient, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config (region=%s): %w", cfg.Region, err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		// LocalStack and MinIO need path-style addressing.
		if cfg.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
			o.UsePathStyle = true
		}
	}), nil
}

func newLogger(level string, w io.Writer) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:     lvl,
		AddSource: false,
	}))
}

package buildinfo

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"

	"github.com/magiconair/properties"
)

// Well-known locations of the Maven version inside its distribution archives.
const (
	MavenBuildResource = "org/apache/maven/messages/build.properties"
	MavenPomResource   = "META-INF/maven/org.apache.maven/maven-core/pom.properties"
)

// versionKey is the properties key holding the tool version.
const versionKey = "version"

// ErrResourceNotFound is returned by a VersionProvider whose resource does not
// exist. A chain moves on to its next provider only on this error.
var ErrResourceNotFound = errors.New("version resource not found")

// VersionProvider discovers the version of the build tool.
type VersionProvider interface {
	Version() (string, error)
}

// ResourceVersionProvider reads the "version" key of a properties resource
// inside a file system (a directory, a jar opened as a zip archive, or an
// in-memory fstest.MapFS).
type ResourceVersionProvider struct {
	fsys     fs.FS
	resource string
}

// NewResourceVersionProvider creates a provider for resource inside fsys.
func NewResourceVersionProvider(fsys fs.FS, resource string) *ResourceVersionProvider {
	return &ResourceVersionProvider{fsys: fsys, resource: resource}
}

// Resource returns the resource path this provider reads.
func (p *ResourceVersionProvider) Resource() string {
	return p.resource
}

// Version opens the resource, parses it and returns its trimmed version. The
// resource is closed on every path.
func (p *ResourceVersionProvider) Version() (string, error) {
	f, err := p.fsys.Open(p.resource)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrResourceNotFound, p.resource)
		}
		return "", fmt.Errorf("opening %s: %w", p.resource, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", p.resource, err)
	}

	loader := &properties.Loader{Encoding: properties.ISO_8859_1, DisableExpansion: true}
	props, err := loader.LoadBytes(data)
	if err != nil {
		return "", fmt.Errorf("error while extracting version properties from %s: %w", p.resource, err)
	}

	version := strings.TrimSpace(props.GetString(versionKey, ""))
	if version == "" {
		return "", fmt.Errorf("no version property found in the resource %s", p.resource)
	}
	return version, nil
}

// ChainVersionProvider tries providers in order. The first provider whose
// resource exists decides the outcome; a read failure or blank version there
// is final and is not masked by later providers.
type ChainVersionProvider struct {
	providers []VersionProvider
}

// NewChainVersionProvider creates a chain over providers, tried in order.
func NewChainVersionProvider(providers ...VersionProvider) *ChainVersionProvider {
	return &ChainVersionProvider{providers: providers}
}

// Version returns the first discovered version. When no provider finds its
// resource the returned error wraps ErrResourceNotFound.
func (c *ChainVersionProvider) Version() (string, error) {
	var misses []string
	for _, p := range c.providers {
		version, err := p.Version()
		if err == nil {
			return version, nil
		}
		if !errors.Is(err, ErrResourceNotFound) {
			return "", err
		}
		misses = append(misses, err.Error())
	}
	return "", fmt.Errorf("%w: tried %d locations [%s]", ErrResourceNotFound, len(c.providers), strings.Join(misses, "; "))
}

// MavenVersionProviders returns the primary and fallback Maven version
// providers for each file system, primary resource first across all of them.
func MavenVersionProviders(filesystems ...fs.FS) []VersionProvider {
	providers := make([]VersionProvider, 0, 2*len(filesystems))
	for _, resource := range []string{MavenBuildResource, MavenPomResource} {
		for _, fsys := range filesystems {
			providers = append(providers, NewResourceVersionProvider(fsys, resource))
		}
	}
	return providers
}

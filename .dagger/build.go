package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"dagger/ephemera/internal/dagger"
)

// platforms is the release matrix as GOOS/GOARCH pairs.
var platforms = [][2]string{
	{"linux", "amd64"},
	{"linux", "arm64"},
	{"darwin", "amd64"},
	{"darwin", "arm64"},
}

// Build compiles the ephemera CLI for every platform and returns a
// directory laid out as <goos>/<goarch>/ephemera.
func (e *Ephemera) Build(
	ctx context.Context,

	// Linker flags for go build
	// +optional
	// +default="-s -w"
	ldflags string,
) *dagger.Directory {
	out := dag.Directory()
	base := e.goContainer()
	for _, p := range platforms {
		dir := p[0] + "/" + p[1] + "/"
		built := base.
			WithEnvVariable("GOOS", p[0]).
			WithEnvVariable("GOARCH", p[1]).
			WithExec([]string{"go", "build", "-trimpath", "-ldflags", ldflags, "-o", dir, "./cli/ephemera"})
		out = out.WithDirectory(dir, built.Directory(dir))
	}
	return out
}

// BuildRelease compiles release binaries stamped with version, commit, and
// build time.
func (e *Ephemera) BuildRelease(
	ctx context.Context,

	// Version string of build
	version string,

	// Git commit SHA of build
	commit string,
) *dagger.Directory {
	return e.Build(ctx, releaseLdflags(version, commit, time.Now().UTC()))
}

func releaseLdflags(version, commit string, built time.Time) string {
	const pkg = "github.com/papercomputeco/ephemera/pkg/utils"
	return strings.Join([]string{
		"-s", "-w",
		fmt.Sprintf("-X '%s.Version=%s'", pkg, version),
		fmt.Sprintf("-X '%s.Sha=%s'", pkg, commit),
		fmt.Sprintf("-X '%s.Buildtime=%s'", pkg, built.Format(time.RFC3339)),
	}, " ")
}

// Ephemera CI/CD
//
// Package main provides reproducible builds and tests locally and in GitHub actions.
// It is the main harness for handling nearly all dev operations.
package main

import (
	"context"

	"dagger/ephemera/internal/dagger"
)

const redisImage = "redis:7-alpine"

// Ephemera is the main module for the ephemera CI/CD pipeline
type Ephemera struct {
	// Project source directory
	//
	// +private
	Source *dagger.Directory
}

// New creates a new Ephemera CI/CD module instance
func New(
	// Project source directory.
	//
	// +defaultPath="/"
	// +ignore=[".git", ".direnv", ".devenv", "build", "tmp"]
	source *dagger.Directory,
) *Ephemera {
	return &Ephemera{
		Source: source,
	}
}

// goContainer is the shared Go toolchain image for tests, builds, and
// linting, with module and build caches attached. Nothing needs CGO.
func (e *Ephemera) goContainer() *dagger.Container {
	return dag.Container().
		From("golang:1.25-bookworm").
		WithEnvVariable("CGO_ENABLED", "0").
		WithEnvVariable("PATH", "/go/bin:$PATH", dagger.ContainerWithEnvVariableOpts{Expand: true}).
		WithMountedCache("/go/pkg/mod", dag.CacheVolume("go-mod")).
		WithMountedCache("/root/.cache/go-build", dag.CacheVolume("go-build")).
		WithWorkdir("/src").
		WithDirectory("/src", e.Source)
}

// Test runs the unit tests. Store-backed tests use an in-process Redis, so no
// services are needed.
func (e *Ephemera) Test(ctx context.Context) (string, error) {
	return e.goContainer().
		WithExec([]string{"go", "test", "./..."}).
		Stdout(ctx)
}

// Smoke runs "ephemera status" and a forced cleanup against a real Redis,
// which exercises the INFO memory parsing the in-process server lacks.
func (e *Ephemera) Smoke(ctx context.Context) (string, error) {
	redis := dag.Container().
		From(redisImage).
		WithExposedPort(6379).
		AsService()

	return e.goContainer().
		WithServiceBinding("redis", redis).
		WithEnvVariable("EPHEMERA_STORE_HOST", "redis").
		WithExec([]string{"go", "build", "-o", "/usr/local/bin/ephemera", "./cli/ephemera"}).
		WithExec([]string{"ephemera", "--config-dir", "/tmp/ephemera", "status", "--json"}).
		WithExec([]string{"ephemera", "--config-dir", "/tmp/ephemera", "cleanup", "--force", "--json"}).
		Stdout(ctx)
}

// Package version reports build and version information.
package version

import (
	"context"
	_ "embed"
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"strings"
	"time"
)

//go:embed VERSION
var embeddedVersion string

// Build information set via ldflags, e.g.
//
//	-X github.com/greysquirr3l/codeguardian-go/internal/version.GitCommit=abc123
var (
	GitCommit = "unknown"
	BuildTime = "unknown"
)

const unknownValue = "unknown"

// BuildInfo contains complete build information
type BuildInfo struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// GetVersion returns the version from the embedded VERSION file.
func GetVersion() string {
	return strings.TrimSpace(embeddedVersion)
}

// GetGitCommit returns the injected commit, or asks git when running
// from a development checkout.
func GetGitCommit() string {
	if GitCommit != unknownValue {
		return GitCommit
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	output, err := exec.CommandContext(ctx, "git", "rev-parse", "--short", "HEAD").Output()
	if err != nil {
		return unknownValue
	}
	return strings.TrimSpace(string(output))
}

// GetBuildInfo returns complete build information
func GetBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   GetVersion(),
		GitCommit: GetGitCommit(),
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// String renders the version with the commit for development builds.
func (b BuildInfo) String() string {
	if b.GitCommit == unknownValue || b.GitCommit == "" {
		return b.Version
	}
	return fmt.Sprintf("%s+%s", b.Version, b.GitCommit)
}

// Fprint writes the build information to w.
func Fprint(w io.Writer, info BuildInfo) {
	fmt.Fprintf(w, "Version:    %s\n", info.Version)
	fmt.Fprintf(w, "Git Commit: %s\n", info.GitCommit)
	fmt.Fprintf(w, "Build Time: %s\n", info.BuildTime)
	fmt.Fprintf(w, "Go Version: %s\n", info.GoVersion)
	fmt.Fprintf(w, "Platform:   %s\n", info.Platform)
}

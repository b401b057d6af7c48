package update

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	selfupdate "github.com/creativeprojects/go-selfupdate"
)

// Repo is the GitHub slug releases are published under.
const Repo = "justinpbarnett/devcompanion"

const (
	checkTimeout = 10 * time.Second
	applyTimeout = 2 * time.Minute
)

// Version is set at build time with -ldflags "-X .../internal/update.Version=v1.2.3".
var Version = "dev"

var ErrDevBuild = errors.New("cannot update a development build, install from a release first")

// Release holds information about an available update.
type Release struct {
	Version      string
	URL          string
	ReleaseNotes string
}

// latestFunc looks up the newest published release for a repository slug.
type latestFunc func(ctx context.Context, repo string) (*Release, bool, error)

// Checker compares the running build against published releases.
type Checker struct {
	Current string
	Repo    string
	latest  latestFunc
}

func NewChecker(current, repo string) *Checker {
	return &Checker{Current: current, Repo: repo, latest: detectLatest}
}

// Check returns the newer release, or nil when the build is current, is a
// development build, or carries a version that is not semver.
func (c *Checker) Check(ctx context.Context) (*Release, error) {
	if isDevBuild(c.Current) {
		return nil, nil
	}
	current, err := parseSemver(c.Current)
	if err != nil {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	latest, found, err := c.latest(ctx, c.Repo)
	if err != nil {
		return nil, fmt.Errorf("detect latest release: %w", err)
	}
	if !found {
		return nil, nil
	}
	latestVer, err := parseSemver(latest.Version)
	if err != nil || !latestVer.GreaterThan(current) {
		return nil, nil
	}
	return latest, nil
}

// CheckForUpdate queries GitHub Releases for a version newer than currentVersion.
func CheckForUpdate(ctx context.Context, currentVersion, repo string) (*Release, error) {
	return NewChecker(currentVersion, repo).Check(ctx)
}

// Apply downloads the latest release binary and replaces the current executable.
func Apply(ctx context.Context, currentVersion, repo string) (*Release, error) {
	if isDevBuild(currentVersion) {
		return nil, ErrDevBuild
	}

	updater, err := newUpdater()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, applyTimeout)
	defer cancel()

	rel, err := updater.UpdateSelf(ctx, strings.TrimPrefix(currentVersion, "v"), selfupdate.ParseSlug(repo))
	if err != nil {
		return nil, fmt.Errorf("update failed: %w", err)
	}
	return &Release{Version: rel.Version(), URL: rel.URL, ReleaseNotes: rel.ReleaseNotes}, nil
}

func detectLatest(ctx context.Context, repo string) (*Release, bool, error) {
	updater, err := newUpdater()
	if err != nil {
		return nil, false, err
	}
	rel, found, err := updater.DetectLatest(ctx, selfupdate.ParseSlug(repo))
	if err != nil || !found {
		return nil, found, err
	}
	return &Release{Version: rel.Version(), URL: rel.URL, ReleaseNotes: rel.ReleaseNotes}, true, nil
}

func newUpdater() (*selfupdate.Updater, error) {
	source, err := selfupdate.NewGitHubSource(selfupdate.GitHubConfig{})
	if err != nil {
		return nil, fmt.Errorf("create github source: %w", err)
	}
	updater, err := selfupdate.NewUpdater(selfupdate.Config{Source: source})
	if err != nil {
		return nil, fmt.Errorf("create updater: %w", err)
	}
	return updater, nil
}

func isDevBuild(v string) bool {
	return v == "" || v == "dev"
}

// CompareVersions compares two semver strings.
// Returns -1 if current < latest, 0 if equal, 1 if current > latest.
// Unparseable versions sort below any valid version.
func CompareVersions(current, latest string) int {
	cv, errC := parseSemver(current)
	lv, errL := parseSemver(latest)

	switch {
	case errC != nil && errL != nil:
		return 0
	case errC != nil:
		return -1
	case errL != nil:
		return 1
	}
	return cv.Compare(lv)
}

// parseSemver strips a leading "v". Git-describe suffixes such as
// "0.1.0-3-gabcdef" parse as prereleases of the base version.
func parseSemver(s string) (*semver.Version, error) {
	return semver.NewVersion(strings.TrimPrefix(s, "v"))
}

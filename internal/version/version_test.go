package version

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func withVars(t *testing.T, version, commit, buildTime string) {
	t.Helper()
	oldVersion, oldCommit, oldTime := Version, GitCommit, BuildTime
	Version, GitCommit, BuildTime = version, commit, buildTime
	t.Cleanup(func() { Version, GitCommit, BuildTime = oldVersion, oldCommit, oldTime })
}

func TestLdflagsOverride(t *testing.T) {
	withVars(t, "v1.2.3", "0123456789abcdef", "2026-03-01T10:00:00Z")

	info := GetBuildInfo()
	assert.Equal(t, "v1.2.3", info.Version)
	assert.Equal(t, "0123456789abcdef", info.GitCommit)
	assert.Equal(t, time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC), info.BuildTime)
	assert.Equal(t, "v1.2.3 (0123456)", GetShortVersion())
	assert.Contains(t, info.String(), "Built: 2026-03-01T10:00:00Z")
}

func TestParseBuildTime(t *testing.T) {
	testCases := []struct {
		input string
		zero  bool
	}{
		{"2026-03-01T10:00:00Z", false},
		{"2026-03-01T10:00:00", false},
		{"2026-03-01 10:00:00", false},
		{"unknown", true},
		{"", true},
	}

	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			assert.Equal(t, tc.zero, parseBuildTime(tc.input).IsZero())
		})
	}
}

func TestBuildInfoString(t *testing.T) {
	info := &BuildInfo{Version: "dev", GitCommit: "unknown", GoVersion: "go1.24.4", Platform: "linux/amd64"}
	assert.Equal(t, "Version: dev\nGo: go1.24.4\nPlatform: linux/amd64", info.String())

	info.GitCommit = "abc1234"
	info.Dirty = true
	assert.Contains(t, info.String(), "Commit: abc1234 (dirty)")
}

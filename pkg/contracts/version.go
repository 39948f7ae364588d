package contracts

import (
	"fmt"
	"runtime"
)

const (
	// APIVersion is the version of the REST and websocket contracts
	APIVersion = "v1"
)

// Set during build using ldflags:
//
//	-X distconsole/pkg/contracts.Version=1.2.0 -X distconsole/pkg/contracts.GitCommit=$(git rev-parse --short HEAD)
var (
	Version   = "dev"
	BuildTime = ""
	GitCommit = ""
)

// VersionInfo contains detailed version information
type VersionInfo struct {
	Version      string `json:"version"`
	BuildTime    string `json:"build_time,omitempty"`
	GitCommit    string `json:"git_commit,omitempty"`
	GoVersion    string `json:"go_version"`
	OS           string `json:"os"`
	Architecture string `json:"architecture"`
	APIVersion   string `json:"api_version"`
}

// GetVersionInfo returns detailed version information
func GetVersionInfo() VersionInfo {
	return VersionInfo{
		Version:      Version,
		BuildTime:    BuildTime,
		GitCommit:    GitCommit,
		GoVersion:    runtime.Version(),
		OS:           runtime.GOOS,
		Architecture: runtime.GOARCH,
		APIVersion:   APIVersion,
	}
}

// GetFullVersionString returns a one-line description of the binary
func GetFullVersionString(program string) string {
	info := GetVersionInfo()
	s := fmt.Sprintf("%s %s (api %s, %s, %s/%s", program, info.Version, info.APIVersion, info.GoVersion, info.OS, info.Architecture)
	if info.GitCommit != "" {
		s += ", commit " + info.GitCommit
	}
	if info.BuildTime != "" {
		s += ", built " + info.BuildTime
	}
	return s + ")"
}

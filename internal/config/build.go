package config

// Linker-injected build metadata, e.g.:
//
//	go build -ldflags "-X hazardwatch/internal/config.version=1.4.0 \
//	    -X hazardwatch/internal/config.commit=$(git rev-parse --short HEAD) \
//	    -X hazardwatch/internal/config.buildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

// NewBuildInfo returns the linker-injected build metadata.
func NewBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   version,
		Commit:    commit,
		BuildTime: buildTime,
	}
}

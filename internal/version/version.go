package version

import "runtime"

// Module is the telemetry module name reported in the User-Agent of ARM requests
const Module = "azure-lro-poller"

// Build information. Populated at build-time via ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Info returns version information
func Info() map[string]string {
	return map[string]string{
		"version":    Version,
		"git_commit": GitCommit,
		"build_date": BuildDate,
		"go_version": runtime.Version(),
	}
}

// Telemetry returns the module version string used by the HTTP pipeline.
// azcore requires a leading "v", so dev builds report v0.0.0-dev.
func Telemetry() string {
	if Version == "" || Version == "dev" {
		return "v0.0.0-dev"
	}
	if Version[0] != 'v' {
		return "v" + Version
	}
	return Version
}

package startup

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"media-pipeline/internal/logging"
)

// Build-time variables (injected via -ldflags)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
	GoVersion = runtime.Version()
)

// BuildInfo contains version and build information
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
	GoVersion string `json:"goVersion"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// GetBuildInfo returns the current build information
func GetBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: GoVersion,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

// PrintBanner prints the startup banner with build information.
func PrintBanner() {
	banner := `
------------------------------------------------------------
    __  ___         ___         ____  _            ___
   /  |/  /__  ____/ (_)___ _  / __ \(_)___  ___  / (_)___  ___
  / /|_/ / _ \/ __  / / __ '/ / /_/ / / __ \/ _ \/ / / __ \/ _ \
 / /  / /  __/ /_/ / / /_/ / / ____/ / /_/ /  __/ / / / / /  __/
/_/  /_/\___/\__,_/_/\__,_/ /_/   /_/ .___/\___/_/_/_/ /_/\___/
                                   /_/
------------------------------------------------------------`
	fmt.Println(banner)
	logging.Info("  Version:    %s", Version)
	logging.Info("  Commit:     %s", Commit)
	logging.Info("  Build Time: %s", BuildTime)
	logging.Info("  Started:    %s", time.Now().Format(time.RFC1123))
	logging.Info("")
}

// LogSystemInfo logs the runtime environment at startup.
func LogSystemInfo() {
	logging.Info("------------------------------------------------------------")
	logging.Info("SYSTEM INFORMATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Go version:      %s", runtime.Version())
	logging.Info("  OS/Arch:         %s/%s", runtime.GOOS, runtime.GOARCH)
	logging.Info("  CPUs available:  %d", runtime.NumCPU())
	logging.Info("  GOMAXPROCS:      %d", runtime.GOMAXPROCS(0))

	if runtime.GOMAXPROCS(0) < runtime.NumCPU() {
		logging.Info("  (Container CPU limit detected)")
	}

	if logging.IsDebugEnabled() {
		if wd, err := os.Getwd(); err == nil {
			logging.Debug("  Working dir:     %s", wd)
		}
		if hostname, err := os.Hostname(); err == nil {
			logging.Debug("  Hostname:        %s", hostname)
		}
	}

	logging.Info("")
}

// LogCatalogInit logs catalog initialization
func LogCatalogInit(duration time.Duration) {
	logging.Info("  [OK] Catalog initialized in %v", duration)
}

// LogComponent logs one pipeline component coming up.
func LogComponent(name string, enabled bool) {
	state := "ENABLED"
	if !enabled {
		state = "DISABLED"
	}
	logging.Info("  %-14s %s", name+":", state)
}

// PipelineConfig holds configuration for the ready log.
type PipelineConfig struct {
	Backend         string
	MetricsPort     string
	MetricsEnabled  bool
	Workers         int
	StartupDuration time.Duration
}

// LogPipelineReady logs a successful startup summary.
func LogPipelineReady(cfg PipelineConfig) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("PIPELINE READY")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Startup time:    %v", cfg.StartupDuration)
	logging.Info("  Storage backend: %s", cfg.Backend)
	logging.Info("  Workers:         %d", cfg.Workers)
	if cfg.MetricsEnabled {
		logging.Info("  Metrics:         http://localhost:%s/metrics", cfg.MetricsPort)
	} else {
		logging.Info("  Metrics:         DISABLED")
	}
	logging.Info("")
	logging.Info("  Press Ctrl+C to stop")
	logging.Info("------------------------------------------------------------")
	logging.Info("")
}

// LogShutdownInitiated logs shutdown start
func LogShutdownInitiated(signal string) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SHUTDOWN INITIATED (received %s)", signal)
	logging.Info("------------------------------------------------------------")
}

// LogShutdownStep logs a shutdown step
func LogShutdownStep(step string) {
	logging.Debug("  %s...", step)
}

// LogShutdownStepComplete logs a completed shutdown step
func LogShutdownStepComplete(step string) {
	logging.Info("  [OK] %s", step)
}

// LogShutdownComplete logs shutdown completion
func LogShutdownComplete() {
	logging.Info("  [OK] Shutdown complete")
}

// LogFatal logs a fatal error and exits
func LogFatal(format string, args ...interface{}) {
	logging.Fatal(format, args...)
}

package obs

import (
	"runtime"
	"runtime/debug"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	buildInfoOnce sync.Once

	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "build_info",
			Help: "Accounts API build information.",
		},
		[]string{"version", "commit", "go_version"},
	)

	readBuildInfo = debug.ReadBuildInfo
)

// InitBuildInfo registers build_info once and publishes a single series for
// this binary. A placeholder commit ("" or "dev") is replaced by the VCS
// revision the toolchain stamped into the binary, when there is one.
func InitBuildInfo(version, commit string) {
	buildInfoOnce.Do(func() {
		prometheus.MustRegister(buildInfo)
	})
	buildInfo.Reset()
	buildInfo.WithLabelValues(orDev(version), resolveCommit(commit), runtime.Version()).Set(1)
}

func resolveCommit(commit string) string {
	if commit != "" && commit != "dev" {
		return commit
	}
	bi, ok := readBuildInfo()
	if !ok {
		return orDev(commit)
	}
	var rev string
	var dirty bool
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			rev = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if rev == "" {
		return orDev(commit)
	}
	if len(rev) > 12 {
		rev = rev[:12]
	}
	if dirty {
		rev += "-dirty"
	}
	return rev
}

func orDev(s string) string {
	if s == "" {
		return "dev"
	}
	return s
}

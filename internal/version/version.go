// Package version carries build information stamped in with ldflags:
//
//	go build -ldflags "-X github.com/yixuanG/eurex-mms-liq-data-demo/internal/version.Version=0.3.0 \
//	                   -X github.com/yixuanG/eurex-mms-liq-data-demo/internal/version.Commit=$(git rev-parse --short HEAD) \
//	                   -X github.com/yixuanG/eurex-mms-liq-data-demo/internal/version.BuildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)" \
//	    ./cmd/liqreplay
package version

import "log/slog"

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// Attr groups the build information for structured logs.
func Attr() slog.Attr {
	return slog.Group("build",
		slog.String("version", Version),
		slog.String("commit", Commit),
		slog.String("built", BuildTime),
	)
}

package health

import (
	"encoding/json"
	"net/http"
	"runtime"
)

// VersionInfo contains build and version information.
type VersionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
}

// LivenessHandler serves the liveness probe. It always answers 200 while
// the process can serve HTTP.
func (c *Checker) LivenessHandler() http.HandlerFunc {
	return probe(func(r *http.Request) (int, any) {
		return http.StatusOK, c.CheckLiveness(r.Context())
	})
}

// ReadinessHandler serves the readiness probe: 200 when ready or degraded,
// 503 when a critical check fails.
func (c *Checker) ReadinessHandler() http.HandlerFunc {
	return probe(func(r *http.Request) (int, any) {
		status := c.CheckReadiness(r.Context())
		if status.Status == StatusUnhealthy {
			return http.StatusServiceUnavailable, status
		}
		return http.StatusOK, status
	})
}

// VersionHandler serves build information.
func VersionHandler(version, commit, buildTime string) http.HandlerFunc {
	info := VersionInfo{
		Version:   version,
		Commit:    commit,
		BuildTime: buildTime,
		GoVersion: runtime.Version(),
	}
	return probe(func(*http.Request) (int, any) {
		return http.StatusOK, info
	})
}

func probe(fn func(r *http.Request) (int, any)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		code, body := fn(r)
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(code)
		if r.Method != http.MethodHead {
			_ = json.NewEncoder(w).Encode(body)
		}
	}
}

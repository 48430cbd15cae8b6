// File: internal/artifacts/resolver.go

// Package artifacts locates and post-processes the files an automation
// engine leaves on disk: per-act logs, agent reasoning traces and
// screenshots.
package artifacts

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Optional capability interfaces probed on an engine instance, in order
// of preference. Engines expose whichever accessor they have.
type logsDirectoryProvider interface{ LogsDirectory() string }
type logsDirProvider interface{ LogsDir() string }
type logPathProvider interface{ LogPath() string }

// ResolveOptions feed the fallback strategies when the instance itself
// does not expose a usable directory.
type ResolveOptions struct {
	// BaseDir is the directory the logs were requested under, if any.
	BaseDir string
	// EngineSessionID scopes temp-directory scanning to this session.
	EngineSessionID string
}

// ResolveLogsDir recovers the logs directory for an engine instance. It
// tries direct accessors first, then a constructed candidate path, then a
// bounded scan of the temp directory. A false return means the directory
// is unavailable, which is not an error condition.
func ResolveLogsDir(instance any, opts ResolveOptions) (string, bool) {
	for _, dir := range probeAccessors(instance) {
		if isDir(dir) {
			return dir, true
		}
	}

	if opts.BaseDir != "" {
		if isDir(opts.BaseDir) {
			return opts.BaseDir, true
		}
		if opts.EngineSessionID != "" {
			candidate := filepath.Join(opts.BaseDir, opts.EngineSessionID)
			if isDir(candidate) {
				return candidate, true
			}
		}
	}

	if opts.EngineSessionID != "" {
		if dir, ok := scanTempDir(opts.EngineSessionID); ok {
			return dir, true
		}
	}
	return "", false
}

func probeAccessors(instance any) []string {
	var dirs []string
	if p, ok := instance.(logsDirectoryProvider); ok {
		dirs = append(dirs, p.LogsDirectory())
	}
	if p, ok := instance.(logsDirProvider); ok {
		dirs = append(dirs, p.LogsDir())
	}
	if p, ok := instance.(logPathProvider); ok {
		dirs = append(dirs, p.LogPath())
	}
	return dirs
}

// scanTempDir looks for a temp-dir entry whose name contains the engine
// session id. The scan is shallow: only direct children are considered.
func scanTempDir(engineSessionID string) (string, bool) {
	entries, err := os.ReadDir(os.TempDir())
	if err != nil {
		return "", false
	}
	for _, entry := range entries {
		if entry.IsDir() && strings.Contains(entry.Name(), engineSessionID) {
			return filepath.Join(os.TempDir(), entry.Name()), true
		}
	}
	return "", false
}

func isDir(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// LogFileInfo describes one log artifact for listings.
type LogFileInfo struct {
	Path     string `json:"path"`
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	Modified int64  `json:"modified"`
}

var logExtensions = map[string]bool{
	".html": true,
	".htm":  true,
	".json": true,
	".log":  true,
}

// ListLogFiles returns the newest log artifacts in dir, capped at limit.
// Besides known extensions, trace archives (trace.zip) are included.
func ListLogFiles(dir string, limit int) []LogFileInfo {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var files []LogFileInfo
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !logExtensions[strings.ToLower(filepath.Ext(name))] && !strings.HasSuffix(name, "trace.zip") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, LogFileInfo{
			Path:     filepath.Join(dir, name),
			Name:     name,
			Size:     info.Size(),
			Modified: info.ModTime().Unix(),
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Modified > files[j].Modified })
	if limit > 0 && len(files) > limit {
		files = files[:limit]
	}
	return files
}

// LatestHTMLLog returns the most recently modified HTML log in dir.
func LatestHTMLLog(dir string) (string, bool) {
	var best string
	var bestMod int64
	for _, f := range ListLogFiles(dir, 0) {
		ext := strings.ToLower(filepath.Ext(f.Name))
		if ext != ".html" && ext != ".htm" {
			continue
		}
		if best == "" || f.Modified > bestMod {
			best, bestMod = f.Path, f.Modified
		}
	}
	return best, best != ""
}

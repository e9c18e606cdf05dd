package policy

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/openmantle/openmantle/pkg/telemetry"
)

// reloadDelay debounces bursts of file events into one reload.
const reloadDelay = 500 * time.Millisecond

// Loader reads .rego policy files from configured paths and watches
// them for changes.
type Loader struct {
	logger  *telemetry.Logger
	watcher *fsnotify.Watcher
}

// NewLoader creates a policy loader.
func NewLoader(tel *telemetry.Telemetry) *Loader {
	if tel == nil {
		tel = telemetry.Nop()
	}
	return &Loader{
		logger: tel.Logger.NewComponentLogger("policy-loader"),
	}
}

// LoadFromPaths loads policies from a list of file or directory paths.
// Directories are walked recursively for .rego files.
func (l *Loader) LoadFromPaths(paths []string) ([]Policy, error) {
	var policies []Policy
	for _, path := range paths {
		loaded, err := l.loadPath(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load policies from %s: %w", path, err)
		}
		policies = append(policies, loaded...)
	}

	l.logger.WithFields(map[string]interface{}{
		"total":   len(policies),
		"sources": len(paths),
	}).Debug("Policies loaded from paths")
	return policies, nil
}

func (l *Loader) loadPath(path string) ([]Policy, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return l.loadDirectory(path)
	}
	policy, err := l.loadFile(path)
	if err != nil {
		return nil, err
	}
	return []Policy{policy}, nil
}

// loadDirectory loads every .rego file under the directory. A file
// that fails to load is logged and skipped so one bad policy does not
// hide the rest.
func (l *Loader) loadDirectory(dir string) ([]Policy, error) {
	var policies []Policy
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".rego") {
			return nil
		}
		policy, err := l.loadFile(path)
		if err != nil {
			l.logger.WithError(err).WithField("path", path).Warn("Skipping unreadable policy file")
			return nil
		}
		policies = append(policies, policy)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return policies, nil
}

// loadFile reads one .rego policy. The policy name is the file name
// without extension; severity and description come from the leading
// comment block.
func (l *Loader) loadFile(path string) (Policy, error) {
	if !strings.HasSuffix(path, ".rego") {
		return Policy{}, fmt.Errorf("unsupported policy file %s: only .rego files are loaded", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, err
	}

	source := string(data)
	severity, description := parseHeader(source)
	policy := Policy{
		Name:        strings.TrimSuffix(filepath.Base(path), ".rego"),
		Description: description,
		Severity:    severity,
		Rego:        source,
		Path:        path,
	}

	l.logger.WithFields(map[string]interface{}{
		"path":   path,
		"policy": policy.Name,
	}).Debug("Policy loaded from file")
	return policy, nil
}

// parseHeader scans the leading comment block for a severity annotation
// and a description. Scanning stops at the first non-comment line. A
// deny rule without an annotation is an error: that is what writing a
// deny rule means.
func parseHeader(source string) (Severity, string) {
	severity := SeverityError
	var description strings.Builder

	for _, line := range strings.Split(source, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if !strings.HasPrefix(trimmed, "#") {
			break
		}
		comment := strings.TrimSpace(strings.TrimPrefix(trimmed, "#"))
		if value, ok := strings.CutPrefix(comment, "severity:"); ok {
			if parsed, ok := parseSeverity(strings.TrimSpace(value)); ok {
				severity = parsed
			}
			continue
		}
		if comment == "" {
			continue
		}
		if description.Len() > 0 {
			description.WriteString(" ")
		}
		description.WriteString(comment)
	}
	return severity, description.String()
}

// parseSeverity maps an annotation value to a Severity.
func parseSeverity(value string) (Severity, bool) {
	switch strings.ToLower(value) {
	case string(SeverityError):
		return SeverityError, true
	case string(SeverityWarning):
		return SeverityWarning, true
	default:
		return "", false
	}
}

// Watch starts watching the paths for .rego changes and calls reloadFn
// with the freshly loaded policies after each change. Events are
// debounced so editors that write in bursts trigger one reload.
func (l *Loader) Watch(paths []string, reloadFn func([]Policy) error) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create policy watcher: %w", err)
	}
	l.watcher = watcher

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			l.logger.WithError(err).WithField("path", path).Warn("Failed to stat policy path for watching")
			continue
		}
		if info.IsDir() {
			if err := l.watchDirectory(path); err != nil {
				l.logger.WithError(err).WithField("path", path).Warn("Failed to watch policy directory")
			}
			continue
		}
		if err := watcher.Add(path); err != nil {
			l.logger.WithError(err).WithField("path", path).Warn("Failed to watch policy file")
		}
	}

	go l.processEvents(paths, reloadFn)

	l.logger.WithField("paths", len(paths)).Info("Watching policy paths")
	return nil
}

// watchDirectory registers the directory tree with the watcher. Files
// get their events through the parent directory.
func (l *Loader) watchDirectory(dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return l.watcher.Add(path)
		}
		return nil
	})
}

func (l *Loader) processEvents(paths []string, reloadFn func([]Policy) error) {
	var reloadTimer *time.Timer

	for {
		select {
		case event, ok := <-l.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove) == 0 {
				continue
			}
			if !strings.HasSuffix(event.Name, ".rego") {
				continue
			}
			l.logger.WithFields(map[string]interface{}{
				"file": event.Name,
				"op":   event.Op.String(),
			}).Debug("Policy file changed")

			if reloadTimer != nil {
				reloadTimer.Stop()
			}
			reloadTimer = time.AfterFunc(reloadDelay, func() {
				if err := l.reload(paths, reloadFn); err != nil {
					l.logger.WithError(err).Error("Failed to reload policies")
				}
			})

		case err, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
			l.logger.WithError(err).Error("Policy watcher error")
		}
	}
}

func (l *Loader) reload(paths []string, reloadFn func([]Policy) error) error {
	policies, err := l.LoadFromPaths(paths)
	if err != nil {
		return err
	}
	if err := reloadFn(policies); err != nil {
		return err
	}
	l.logger.WithField("count", len(policies)).Info("Policies reloaded")
	return nil
}

// StopWatching closes the watcher. Safe to call when Watch never ran.
func (l *Loader) StopWatching() error {
	if l.watcher != nil {
		return l.watcher.Close()
	}
	return nil
}

package simulation

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/openclaw/sentinel/internal/logging"
)

// DefaultProfiles covers the builtin tool catalog. Operators can override or
// extend these through a YAML profiles file.
func DefaultProfiles() map[string]Profile {
	return map[string]Profile{
		"echo": {
			LatencyPattern:    "low",
			FailureLikelihood: 0.01,
			Confidence:        0.9,
		},
		"code_analyzer": {
			Outputs:           map[string]interface{}{"code_assessment": "static findings for the supplied code"},
			Preconditions:     []string{"code"},
			LatencyPattern:    "medium",
			FailureLikelihood: 0.05,
			Confidence:        0.8,
		},
		"microservice_builder": {
			Outputs:           map[string]interface{}{"service_spec": "service scaffold description"},
			Preconditions:     []string{"description"},
			SideEffects:       []string{"service_scaffold"},
			LatencyPattern:    "high",
			FailureLikelihood: 0.15,
			Confidence:        0.7,
		},
		"web_search": {
			Outputs:           map[string]interface{}{"search_results": "ranked result list"},
			Preconditions:     []string{"query"},
			SideEffects:       []string{"network_request"},
			LatencyPattern:    "medium",
			FailureLikelihood: 0.2,
			Confidence:        0.6,
		},
		"internet_extract": {
			Outputs:           map[string]interface{}{"extracted_content": "page title, links and text"},
			Preconditions:     []string{"url"},
			SideEffects:       []string{"network_request"},
			LatencyPattern:    "high",
			FailureLikelihood: 0.25,
			Confidence:        0.6,
		},
		"read_file": {
			Preconditions:     []string{"path"},
			LatencyPattern:    "low",
			FailureLikelihood: 0.05,
			Confidence:        0.85,
		},
		"write_file": {
			Preconditions:     []string{"path", "content"},
			LatencyPattern:    "low",
			FailureLikelihood: 0.1,
			Confidence:        0.8,
		},
		"list_dir": {
			LatencyPattern:    "low",
			FailureLikelihood: 0.05,
			Confidence:        0.85,
		},
	}
}

// LoadProfiles reads semantic tool profiles from a YAML file. The file maps
// tool names to profile documents.
func LoadProfiles(path string) (map[string]Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read profiles file: %w", err)
	}
	profiles := make(map[string]Profile)
	if err := yaml.Unmarshal(data, &profiles); err != nil {
		return nil, fmt.Errorf("failed to parse profiles file %s: %w", path, err)
	}
	return profiles, nil
}

// ProfileWatcher reloads a profiles file into a sandbox whenever it changes
// on disk.
type ProfileWatcher struct {
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// WatchProfiles starts watching path and merges its profiles into the
// sandbox on every write. The initial load happens before this returns.
func WatchProfiles(path string, sandbox *Sandbox, log *logging.Logger) (*ProfileWatcher, error) {
	profiles, err := LoadProfiles(path)
	if err != nil {
		return nil, err
	}
	sandbox.UpdateProfiles(profiles)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create profile watcher: %w", err)
	}
	// Watch the directory: editors often replace the file rather than
	// writing it in place, which drops a watch on the file itself.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch profiles directory: %w", err)
	}

	pw := &ProfileWatcher{watcher: watcher, done: make(chan struct{})}
	log = log.WithComponent("profiles")

	go func() {
		target := filepath.Clean(path)
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				reloaded, err := LoadProfiles(path)
				if err != nil {
					log.Warn("profile reload failed", map[string]interface{}{"path": path, "error": err.Error()})
					continue
				}
				sandbox.UpdateProfiles(reloaded)
				log.Info("profiles reloaded", map[string]interface{}{"path": path, "count": len(reloaded)})
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warn("profile watcher error", map[string]interface{}{"error": err.Error()})
			case <-pw.done:
				return
			}
		}
	}()
	return pw, nil
}

// Close stops the watcher.
func (pw *ProfileWatcher) Close() error {
	close(pw.done)
	return pw.watcher.Close()
}

// Package project manages long-horizon projects: durable goal and plan
// records, dependency validation, governance checks, and operator reports.
package project

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Goal statuses.
const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Goal is one long-horizon objective inside a project.
type Goal struct {
	ID       string                 `json:"id"`
	Text     string                 `json:"text"`
	Status   string                 `json:"status"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Step is one planned action inside a registered plan.
type Step struct {
	ID        string   `json:"id"`
	Action    string   `json:"action"`
	DependsOn []string `json:"depends_on,omitempty"`
	Status    string   `json:"status"`
	Output    string   `json:"output,omitempty"`
}

// PlanRecord is a validated plan attached to a project.
type PlanRecord struct {
	ID           string              `json:"plan_id"`
	Steps        []Step              `json:"steps"`
	Dependencies map[string][]string `json:"dependencies"`
	MaxDepth     int                 `json:"max_depth"`
	CreatedAt    time.Time           `json:"created_at"`
}

// LogEntry is an append-only project event.
type LogEntry struct {
	Event     string                 `json:"event"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Project is the full durable record.
type Project struct {
	ID           string                `json:"project_id"`
	Name         string                `json:"name"`
	Description  string                `json:"description"`
	Version      int                   `json:"version"`
	Goals        map[string]Goal       `json:"goals"`
	Plans        map[string]PlanRecord `json:"plans"`
	Dependencies map[string][]string   `json:"dependencies"`
	Logs         []LogEntry            `json:"logs"`
	CreatedAt    time.Time             `json:"created_at"`
	UpdatedAt    time.Time             `json:"updated_at"`
}

// Summary is the listing view of a project.
type Summary struct {
	ID          string    `json:"project_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Version     int       `json:"version"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Store persists projects as one JSON file each under a storage directory.
type Store struct {
	dir string
}

// NewStore creates the storage directory if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create project storage: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the storage directory path.
func (s *Store) Dir() string { return s.dir }

func (s *Store) path(projectID string) string {
	return filepath.Join(s.dir, projectID+".json")
}

// Create initializes and persists an empty project.
func (s *Store) Create(name, description string) (*Project, error) {
	now := time.Now()
	project := &Project{
		ID:           uuid.New().String(),
		Name:         name,
		Description:  description,
		Version:      1,
		Goals:        map[string]Goal{},
		Plans:        map[string]PlanRecord{},
		Dependencies: map[string][]string{},
		Logs:         []LogEntry{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.write(project); err != nil {
		return nil, err
	}
	return project, nil
}

// Load reads a project by ID.
func (s *Store) Load(projectID string) (*Project, error) {
	data, err := os.ReadFile(s.path(projectID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("project not found: %s", projectID)
		}
		return nil, fmt.Errorf("read project %s: %w", projectID, err)
	}
	var project Project
	if err := json.Unmarshal(data, &project); err != nil {
		return nil, fmt.Errorf("corrupt project file %s: %w", projectID, err)
	}
	if project.Goals == nil {
		project.Goals = map[string]Goal{}
	}
	if project.Plans == nil {
		project.Plans = map[string]PlanRecord{}
	}
	if project.Dependencies == nil {
		project.Dependencies = map[string][]string{}
	}
	return &project, nil
}

// Save bumps the version and persists the project.
func (s *Store) Save(project *Project) error {
	project.Version++
	project.UpdatedAt = time.Now()
	return s.write(project)
}

// write performs an atomic replace so a crash never leaves a torn file.
func (s *Store) write(project *Project) error {
	data, err := json.MarshalIndent(project, "", "  ")
	if err != nil {
		return fmt.Errorf("encode project %s: %w", project.ID, err)
	}
	path := s.path(project.ID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write project %s: %w", project.ID, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace project %s: %w", project.ID, err)
	}
	return nil
}

// AppendLog loads, appends an event, and saves.
func (s *Store) AppendLog(projectID, event string, details map[string]interface{}) error {
	project, err := s.Load(projectID)
	if err != nil {
		return err
	}
	project.Logs = append(project.Logs, LogEntry{Event: event, Details: details, Timestamp: time.Now()})
	return s.Save(project)
}

// List returns project summaries, newest first.
func (s *Store) List() ([]Summary, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	var summaries []Summary
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		project, err := s.Load(strings.TrimSuffix(entry.Name(), ".json"))
		if err != nil {
			continue
		}
		summaries = append(summaries, Summary{
			ID:          project.ID,
			Name:        project.Name,
			Description: project.Description,
			Version:     project.Version,
			UpdatedAt:   project.UpdatedAt,
		})
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].UpdatedAt.After(summaries[j].UpdatedAt)
	})
	return summaries, nil
}

// Health reports storage diagnostics.
func (s *Store) Health() map[string]interface{} {
	count := 0
	if entries, err := os.ReadDir(s.dir); err == nil {
		for _, entry := range entries {
			if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".json") {
				count++
			}
		}
	}
	writable := true
	probe := filepath.Join(s.dir, ".probe")
	if err := os.WriteFile(probe, nil, 0o644); err != nil {
		writable = false
	} else {
		os.Remove(probe)
	}
	return map[string]interface{}{
		"storage_path": s.dir,
		"writable":     writable,
		"projects":     count,
	}
}

// Package directory provides the project and agent registry.
package directory

import (
	"errors"
	"fmt"
	"time"

	"github.com/zulandar/switchboard/internal/models"
	"gorm.io/gorm"
)

// ErrNotFound is returned when a lookup matches no agent.
var ErrNotFound = errors.New("not found")

// RegisterParams holds parameters for registering or refreshing an agent.
// Empty optional fields leave the stored value unchanged on update.
type RegisterParams struct {
	ProjectSlug   string
	Name          string // generated if empty
	Program       string
	Model         string
	ContactPolicy models.ContactPolicy
}

// ResolveProject looks up a project by slug without creating it. Returns
// (nil, nil) when the slug is unknown: read paths never mutate.
func ResolveProject(db *gorm.DB, slug string) (*models.Project, error) {
	var project models.Project
	err := db.Where("slug = ?", slug).First(&project).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("directory: resolve project %q: %w", slug, err)
	}
	return &project, nil
}

// ResolveOrCreateProject looks up a project by slug, creating the row on
// first use. Write paths auto-provision projects.
func ResolveOrCreateProject(db *gorm.DB, slug string) (*models.Project, error) {
	if slug == "" {
		return nil, fmt.Errorf("directory: project slug is required")
	}
	var project models.Project
	err := db.Where(models.Project{Slug: slug}).
		Attrs(models.Project{CreatedAt: time.Now()}).
		FirstOrCreate(&project).Error
	if err != nil {
		return nil, fmt.Errorf("directory: resolve or create project %q: %w", slug, err)
	}
	return &project, nil
}

// Register creates or refreshes an agent, keyed by (project, name). The
// project is auto-provisioned. On update each empty optional field keeps
// the stored value; LastActiveAt always advances.
func Register(db *gorm.DB, p RegisterParams) (*models.Agent, error) {
	if p.ProjectSlug == "" {
		return nil, fmt.Errorf("directory: projectSlug is required")
	}
	if p.ContactPolicy != "" && !p.ContactPolicy.Valid() {
		return nil, fmt.Errorf("directory: invalid contact policy %q", p.ContactPolicy)
	}

	name := p.Name
	if name == "" {
		// Best-effort uniqueness only: a collision with an existing agent
		// merges into that agent's row.
		name = RandomName()
	}

	var agent *models.Agent
	err := db.Transaction(func(tx *gorm.DB) error {
		project, err := ResolveOrCreateProject(tx, p.ProjectSlug)
		if err != nil {
			return err
		}

		var existing models.Agent
		err = tx.Where("project_id = ? AND name = ?", project.ID, name).First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			created := newAgent(project.ID, name, p)
			if err := tx.Create(&created).Error; err != nil {
				// A concurrent register for the same (project, name) may win
				// the insert; the unique index guarantees one row, so fall
				// back to updating it.
				if ferr := tx.Where("project_id = ? AND name = ?", project.ID, name).
					First(&existing).Error; ferr != nil {
					return fmt.Errorf("directory: register %q: %w", name, err)
				}
			} else {
				agent = &created
				return nil
			}
		} else if err != nil {
			return fmt.Errorf("directory: register %q: %w", name, err)
		}

		merged := merge(existing, p)
		merged.LastActiveAt = time.Now()
		if err := tx.Save(&merged).Error; err != nil {
			return fmt.Errorf("directory: register update %q: %w", name, err)
		}
		agent = &merged
		return nil
	})
	if err != nil {
		return nil, err
	}
	return agent, nil
}

// newAgent builds a fresh agent row; ContactPolicy defaults to auto only
// at creation time.
func newAgent(projectID uint, name string, p RegisterParams) models.Agent {
	policy := p.ContactPolicy
	if policy == "" {
		policy = models.PolicyAuto
	}
	now := time.Now()
	return models.Agent{
		ProjectID:     projectID,
		Name:          name,
		Program:       p.Program,
		Model:         p.Model,
		ContactPolicy: policy,
		CreatedAt:     now,
		LastActiveAt:  now,
	}
}

// merge applies field-level coalesce: incoming empty fields keep the
// stored value.
func merge(existing models.Agent, p RegisterParams) models.Agent {
	if p.Program != "" {
		existing.Program = p.Program
	}
	if p.Model != "" {
		existing.Model = p.Model
	}
	if p.ContactPolicy != "" {
		existing.ContactPolicy = p.ContactPolicy
	}
	return existing
}

// Whois looks up an agent by exact name within a project. It never creates
// anything; unknown project or name yields ErrNotFound.
func Whois(db *gorm.DB, projectSlug, name string) (*models.Agent, error) {
	project, err := ResolveProject(db, projectSlug)
	if err != nil {
		return nil, err
	}
	if project == nil {
		return nil, fmt.Errorf("directory: agent %q in project %q: %w", name, projectSlug, ErrNotFound)
	}

	var agent models.Agent
	err = db.Where("project_id = ? AND name = ?", project.ID, name).First(&agent).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("directory: agent %q in project %q: %w", name, projectSlug, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("directory: whois %q: %w", name, err)
	}
	return &agent, nil
}

// List returns all agents in a project, most recently active first. An
// unknown project yields an empty list, not an error.
func List(db *gorm.DB, projectSlug string) ([]models.Agent, error) {
	project, err := ResolveProject(db, projectSlug)
	if err != nil {
		return nil, err
	}
	if project == nil {
		return nil, nil
	}

	var agents []models.Agent
	if err := db.Where("project_id = ?", project.ID).
		Order("last_active_at DESC").Find(&agents).Error; err != nil {
		return nil, fmt.Errorf("directory: list %q: %w", projectSlug, err)
	}
	return agents, nil
}

// ListProjects returns all known projects ordered by slug.
func ListProjects(db *gorm.DB) ([]models.Project, error) {
	var projects []models.Project
	if err := db.Order("slug ASC").Find(&projects).Error; err != nil {
		return nil, fmt.Errorf("directory: list projects: %w", err)
	}
	return projects, nil
}

package profile

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"arkmanager/internal/domain"

	"github.com/google/uuid"
)

// Registry is the process-wide set of loaded profiles. It is created once by
// the app container and handed to whatever needs profiles.
type Registry struct {
	repo domain.ProfileRepository

	mu       sync.RWMutex
	profiles map[string]*domain.Profile
}

func NewRegistry(repo domain.ProfileRepository) *Registry {
	return &Registry{
		repo:     repo,
		profiles: make(map[string]*domain.Profile),
	}
}

func (r *Registry) Load() error {
	list, err := r.repo.ListProfiles()
	if err != nil {
		return fmt.Errorf("could not load profiles: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.profiles = make(map[string]*domain.Profile, len(list))
	for i := range list {
		p := list[i]
		r.profiles[p.ID] = &p
	}
	return nil
}

// Create stores a new profile, assigning an ID when it has none.
func (r *Registry) Create(p *domain.Profile) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	if err := p.Snapshot().Validate(); err != nil {
		return err
	}
	if err := r.repo.SaveProfile(p); err != nil {
		return fmt.Errorf("could not save profile: %w", err)
	}

	cp := *p
	r.mu.Lock()
	r.profiles[p.ID] = &cp
	r.mu.Unlock()
	return nil
}

// Put replaces the stored profile with a full edit.
func (r *Registry) Put(p *domain.Profile) error {
	if err := p.Snapshot().Validate(); err != nil {
		return err
	}
	if err := r.repo.UpdateProfile(p); err != nil {
		return fmt.Errorf("could not update profile: %w", err)
	}

	cp := *p
	r.mu.Lock()
	r.profiles[p.ID] = &cp
	r.mu.Unlock()
	return nil
}

func (r *Registry) Delete(id string) error {
	if err := r.repo.DeleteProfile(id); err != nil {
		return err
	}
	r.mu.Lock()
	delete(r.profiles, id)
	r.mu.Unlock()
	return nil
}

// Snapshot returns a private copy of the profile, or false if it is unknown.
func (r *Registry) Snapshot(id string) (domain.ProfileSnapshot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.profiles[id]
	if !ok {
		return domain.ProfileSnapshot{}, false
	}
	return p.Snapshot(), true
}

func (r *Registry) Snapshots() []domain.ProfileSnapshot {
	r.mu.RLock()
	out := make([]domain.ProfileSnapshot, 0, len(r.profiles))
	for _, p := range r.profiles {
		out = append(out, p.Snapshot())
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ForBranch returns snapshots of every profile bound to key.
func (r *Registry) ForBranch(key domain.BranchKey) []domain.ProfileSnapshot {
	var out []domain.ProfileSnapshot
	for _, s := range r.Snapshots() {
		if s.Branch().Equal(key) {
			out = append(out, s)
		}
	}
	return out
}

// Branches lists the distinct branches across all profiles.
func (r *Registry) Branches() []domain.BranchKey {
	seen := make(map[string]bool)
	var out []domain.BranchKey
	for _, s := range r.Snapshots() {
		k := s.Branch()
		if seen[k.String()] {
			continue
		}
		seen[k.String()] = true
		out = append(out, k)
	}
	return out
}

// Merge writes the whitelisted fields back to storage and to the live profile.
// Nothing else of a snapshot ever flows back.
func (r *Registry) Merge(id string, fields domain.MergeFields) error {
	if fields.Empty() {
		return nil
	}
	if err := r.repo.MergeProfile(id, fields); err != nil {
		return fmt.Errorf("could not merge profile %s: %w", id, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[id]
	if !ok {
		return nil
	}
	if fields.LastInstalledVersion != nil {
		p.LastInstalledVersion = *fields.LastInstalledVersion
	}
	if fields.LastStarted != nil {
		p.LastStarted = *fields.LastStarted
	}
	if fields.ServerUpdated != nil {
		p.ServerUpdated = *fields.ServerUpdated
	}
	return nil
}

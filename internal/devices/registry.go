package devices

import (
	"acbridge/internal/core"
	"errors"
	"fmt"
	"sort"
	"sync"
)

var ErrUnknownProfile = errors.New("unknown command profile")

// Registry maps appliance IDs to command profiles. Appliances that were never
// assigned use the default profile.
type Registry struct {
	profiles       map[string]core.CommandProfile // profile name -> profile
	appliances     map[string]string              // appliance ID -> profile name
	defaultProfile string
	mu             sync.RWMutex
}

// NewRegistry creates a registry holding the built-in profiles with "default"
// as the fallback
func NewRegistry() *Registry {
	r := &Registry{
		profiles:       make(map[string]core.CommandProfile),
		appliances:     make(map[string]string),
		defaultProfile: core.DefaultProfile().Name,
	}
	for _, p := range []core.CommandProfile{core.DefaultProfile(), core.FineProfile(), core.LegacyProfile()} {
		r.profiles[p.Name] = p
	}
	return r
}

// RegisterProfile adds or replaces a named profile
func (r *Registry) RegisterProfile(profile core.CommandProfile) error {
	if profile.Name == "" {
		return fmt.Errorf("profile name cannot be empty")
	}
	if len(profile.Modes) == 0 {
		return fmt.Errorf("profile %s must allow at least one mode", profile.Name)
	}
	if len(profile.FanSpeeds) == 0 {
		return fmt.Errorf("profile %s must allow at least one fan speed", profile.Name)
	}
	if profile.MinTemperatureC >= profile.MaxTemperatureC {
		return fmt.Errorf("profile %s has an empty temperature range", profile.Name)
	}
	if profile.TemperatureStepC < 0 || profile.TimerStepSeconds < 0 || profile.MaxTimerSeconds < 0 {
		return fmt.Errorf("profile %s has a negative step or limit", profile.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.profiles[profile.Name] = profile
	return nil
}

// SetDefault changes the fallback profile
func (r *Registry) SetDefault(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.profiles[name]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProfile, name)
	}
	r.defaultProfile = name
	return nil
}

// Assign binds an appliance to a named profile
func (r *Registry) Assign(applianceID, profileName string) error {
	if applianceID == "" {
		return fmt.Errorf("appliance ID cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.profiles[profileName]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProfile, profileName)
	}
	r.appliances[applianceID] = profileName
	return nil
}

// Profile retrieves a profile by name
func (r *Registry) Profile(name string) (core.CommandProfile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	profile, ok := r.profiles[name]
	if !ok {
		return core.CommandProfile{}, fmt.Errorf("%w: %s", ErrUnknownProfile, name)
	}
	return profile, nil
}

// ProfileFor returns the profile for an appliance, falling back to the default
func (r *Registry) ProfileFor(applianceID string) core.CommandProfile {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if name, ok := r.appliances[applianceID]; ok {
		return r.profiles[name]
	}
	return r.profiles[r.defaultProfile]
}

// ProfileNames returns all profile names, sorted
func (r *Registry) ProfileNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.profiles))
	for name := range r.profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

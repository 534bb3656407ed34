// Package profile describes a lab setup: the named devices to attach
// on daemon start and their per-device arguments.
package profile

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DeviceSpec declares one device of a profile
type DeviceSpec struct {
	Name string                 `yaml:"name" json:"name"`
	Kind string                 `yaml:"kind" json:"kind"`
	Args map[string]interface{} `yaml:"args,omitempty" json:"args,omitempty"`
}

// Profile is a named collection of devices
type Profile struct {
	Name    string       `yaml:"name" json:"name"`
	Devices []DeviceSpec `yaml:"devices" json:"devices"`
}

// Load reads and validates a profile file
func Load(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile: %w", err)
	}

	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse profile: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks structural requirements: device names present and
// unique, kinds present
func (p *Profile) Validate() error {
	seen := make(map[string]bool)
	for i, d := range p.Devices {
		if d.Name == "" {
			return fmt.Errorf("device %d: missing name", i)
		}
		if d.Kind == "" {
			return fmt.Errorf("device %s: missing kind", d.Name)
		}
		if seen[d.Name] {
			return fmt.Errorf("duplicate device name: %s", d.Name)
		}
		seen[d.Name] = true
	}
	return nil
}

// Save writes the profile to disk
func (p *Profile) Save(path string) error {
	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode profile: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

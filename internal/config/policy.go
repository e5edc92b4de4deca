package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Policy tunes home provisioning. It is read from the YAML file named by
// POLICY_FILE; every field is optional.
//
//	reserved_prefixes: ["jcr:", "rep:", "sakai:"]
//	profile_types:
//	  user: sakai/user-profile
//	  group: sakai/group-profile
type Policy struct {
	// ReservedPrefixes are property name prefixes never copied to profiles.
	// Nil keeps the built-in list.
	ReservedPrefixes []string `yaml:"reserved_prefixes"`

	ProfileTypes ProfileTypes `yaml:"profile_types"`
}

// ProfileTypes are the resource types stamped on new profiles.
type ProfileTypes struct {
	User  string `yaml:"user"`
	Group string `yaml:"group"`
}

// LoadPolicy reads a policy file. An empty path yields the zero Policy.
func LoadPolicy(path string) (*Policy, error) {
	if path == "" {
		return &Policy{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}

	var policy Policy
	if err := yaml.Unmarshal(data, &policy); err != nil {
		return nil, fmt.Errorf("failed to parse policy file: %w", err)
	}

	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid policy file %s: %w", path, err)
	}
	return &policy, nil
}

// Validate checks that the policy is usable.
func (p *Policy) Validate() error {
	for _, prefix := range p.ReservedPrefixes {
		if strings.TrimSpace(prefix) == "" {
			return fmt.Errorf("reserved_prefixes must not contain empty entries")
		}
	}
	for kind, t := range map[string]string{"user": p.ProfileTypes.User, "group": p.ProfileTypes.Group} {
		if t != "" && strings.ContainsAny(t, " \t\n") {
			return fmt.Errorf("profile_types.%s must not contain whitespace, got %q", kind, t)
		}
	}
	return nil
}

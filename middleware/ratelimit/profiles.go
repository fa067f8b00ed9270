package ratelimit

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Profile names a rate-limit configuration. The set is closed: callers pick
// a profile, never build ad-hoc string keys.
type Profile string

const (
	ProfileTokenValidation    Profile = "token_validation"
	ProfileGalleryAccess      Profile = "gallery_access"
	ProfileAdminAPI           Profile = "admin_api"
	ProfileDistribution       Profile = "distribution"
	ProfilePublicAPI          Profile = "public_api"
	ProfileDeviceRegistration Profile = "device_registration"
)

// Config is one immutable rate-limit configuration. When
// SkipSuccessfulRequests is set, a successful request is refunded via
// MarkSuccess so only failures count toward the limit.
type Config struct {
	Window                 time.Duration
	MaxAttempts            int
	BlockDuration          time.Duration
	SkipSuccessfulRequests bool
	Message                string
}

func defaultProfiles() map[Profile]Config {
	return map[Profile]Config{
		ProfileTokenValidation: {
			Window:        time.Minute,
			MaxAttempts:   10,
			BlockDuration: 5 * time.Minute,
			Message:       "Too many token validation attempts. Please try again later.",
		},
		ProfileGalleryAccess: {
			Window:                 time.Minute,
			MaxAttempts:            30,
			BlockDuration:          2 * time.Minute,
			SkipSuccessfulRequests: true,
			Message:                "Too many gallery requests. Please slow down.",
		},
		ProfileAdminAPI: {
			Window:        time.Minute,
			MaxAttempts:   100,
			BlockDuration: time.Minute,
			Message:       "Admin API rate limit exceeded.",
		},
		ProfileDistribution: {
			Window:        5 * time.Minute,
			MaxAttempts:   20,
			BlockDuration: 10 * time.Minute,
			Message:       "Too many distribution requests. Please try again later.",
		},
		ProfilePublicAPI: {
			Window:        time.Minute,
			MaxAttempts:   60,
			BlockDuration: time.Minute,
			Message:       "Rate limit exceeded. Please try again later.",
		},
		ProfileDeviceRegistration: {
			Window:        time.Hour,
			MaxAttempts:   5,
			BlockDuration: 24 * time.Hour,
			Message:       "Too many device registrations from this address.",
		},
	}
}

// duration parses "5m" style values from the overrides file.
type duration time.Duration

func (d *duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}

	*d = duration(parsed)
	return nil
}

type profileOverride struct {
	Window                 *duration `yaml:"window"`
	MaxAttempts            *int      `yaml:"max_attempts"`
	BlockDuration          *duration `yaml:"block_duration"`
	SkipSuccessfulRequests *bool     `yaml:"skip_successful_requests"`
	Message                *string   `yaml:"message"`
}

// LoadProfiles returns the built-in profile table with any overrides from
// the given YAML file applied. Unknown profile names in the file are
// rejected so typos don't silently leave the default in place.
func LoadProfiles(path string) (map[Profile]Config, error) {
	profiles := defaultProfiles()
	if path == "" {
		return profiles, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rate-limit profiles file: %w", err)
	}

	var overrides map[Profile]profileOverride
	if err := yaml.Unmarshal(raw, &overrides); err != nil {
		return nil, fmt.Errorf("failed to parse rate-limit profiles file: %w", err)
	}

	for name, override := range overrides {
		base, ok := profiles[name]
		if !ok {
			return nil, fmt.Errorf("unknown rate-limit profile %q in %s", name, path)
		}

		if override.Window != nil {
			base.Window = time.Duration(*override.Window)
		}
		if override.MaxAttempts != nil {
			base.MaxAttempts = *override.MaxAttempts
		}
		if override.BlockDuration != nil {
			base.BlockDuration = time.Duration(*override.BlockDuration)
		}
		if override.SkipSuccessfulRequests != nil {
			base.SkipSuccessfulRequests = *override.SkipSuccessfulRequests
		}
		if override.Message != nil {
			base.Message = *override.Message
		}

		profiles[name] = base
	}

	return profiles, nil
}

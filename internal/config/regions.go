package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"hazardwatch/internal/types"
)

// regionsFile is the on-disk layout of REGIONS_FILE.
type regionsFile struct {
	Regions []types.MonitoredRegion `yaml:"regions"`
}

// DefaultRegions is the built-in monitored set used when no file is given.
func DefaultRegions() []types.MonitoredRegion {
	return []types.MonitoredRegion{
		{Name: "Dar es Salaam", Latitude: -6.7924, Longitude: 39.2083},
		{Name: "Dodoma", Latitude: -6.1630, Longitude: 35.7516},
		{Name: "Arusha", Latitude: -3.3869, Longitude: 36.6830},
		{Name: "Mwanza", Latitude: -2.5164, Longitude: 32.9175},
		{Name: "Mbeya", Latitude: -8.9094, Longitude: 33.4608},
		{Name: "Morogoro", Latitude: -6.8278, Longitude: 37.6591},
		{Name: "Tanga", Latitude: -5.0689, Longitude: 39.0988},
		{Name: "Kilimanjaro", Latitude: -3.0674, Longitude: 37.3556},
		{Name: "Tabora", Latitude: -5.0162, Longitude: 32.8266},
		{Name: "Kigoma", Latitude: -4.8769, Longitude: 29.6267},
		{Name: "Mtwara", Latitude: -10.2736, Longitude: 40.1828},
		{Name: "Zanzibar", Latitude: -6.1659, Longitude: 39.2026},
	}
}

// LoadRegions reads the monitored regions from a YAML file. An empty path
// returns DefaultRegions. Names must be unique and coordinates in range.
func LoadRegions(path string) ([]types.MonitoredRegion, error) {
	if path == "" {
		return DefaultRegions(), nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Type: ErrParsing, Message: fmt.Sprintf("failed to read regions file %s", path), Err: err}
	}

	var doc regionsFile
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, &ConfigError{Type: ErrParsing, Message: fmt.Sprintf("failed to decode regions file %s", path), Err: err}
	}

	if err := validateRegions(doc.Regions); err != nil {
		return nil, err
	}
	return doc.Regions, nil
}

func validateRegions(regions []types.MonitoredRegion) error {
	if len(regions) == 0 {
		return &ConfigError{Type: ErrValidation, Message: "at least one monitored region is required"}
	}

	validate := validator.New()
	seen := make(map[string]struct{}, len(regions))
	for i, r := range regions {
		if err := validate.Struct(r); err != nil {
			return &ConfigError{Type: ErrValidation, Message: fmt.Sprintf("region %d (%q) is invalid", i, r.Name), Err: err}
		}
		if _, dup := seen[r.Name]; dup {
			return &ConfigError{Type: ErrValidation, Message: fmt.Sprintf("region %q is listed twice", r.Name)}
		}
		seen[r.Name] = struct{}{}
	}
	return nil
}

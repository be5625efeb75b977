package prd

import "gopkg.in/yaml.v3"

// ParsePRD decodes a YAML-encoded PRD document, filling in any constraint
// defaults the document omitted.
func ParsePRD(data []byte) (PRD, error) {
	var p PRD
	if err := yaml.Unmarshal(data, &p); err != nil {
		return PRD{}, err
	}

	defaults := DefaultConstraints()
	if p.Constraints.MaxWorkers == 0 {
		p.Constraints.MaxWorkers = defaults.MaxWorkers
	}
	if p.Constraints.MaxIterationsPerStory == 0 {
		p.Constraints.MaxIterationsPerStory = defaults.MaxIterationsPerStory
	}
	if p.Constraints.TotalTimeoutMinutes == 0 {
		p.Constraints.TotalTimeoutMinutes = defaults.TotalTimeoutMinutes
	}
	if p.Constraints.Models == nil {
		p.Constraints.Models = defaults.Models
	}

	return p, nil
}

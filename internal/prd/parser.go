package prd

import (
	"fmt"
	"regexp"
)

const (
	estimatedInputTokens  uint64 = 2000
	estimatedOutputTokens uint64 = 1000
)

// ValidatePRD checks p for structural errors (duplicate/missing/circular
// story dependencies, criteria that can't be checked, bad constraints) and,
// on success, assigns models, computes a dependency order, and estimates
// cost.
func ValidatePRD(p PRD) ValidationResult {
	if len(p.Stories) == 0 {
		return invalidResult([]string{"PRD has no stories"})
	}

	var errs []string

	seen := make(map[string]bool, len(p.Stories))
	for _, s := range p.Stories {
		if seen[s.ID] {
			errs = append(errs, fmt.Sprintf("duplicate story id: %s", s.ID))
		}
		seen[s.ID] = true
	}

	for _, s := range p.Stories {
		for _, dep := range s.Dependencies {
			if !seen[dep] {
				errs = append(errs, fmt.Sprintf("story %s depends on unknown story %s", s.ID, dep))
			}
		}
	}

	if len(errs) == 0 {
		if cycle := detectCycle(p.Stories); len(cycle) > 0 {
			errs = append(errs, fmt.Sprintf("circular dependency: %v", cycle))
		}
	}

	for _, s := range p.Stories {
		if len(s.AcceptanceCriteria) == 0 {
			errs = append(errs, fmt.Sprintf("story %s has no acceptance criteria", s.ID))
			continue
		}
		for i, c := range s.AcceptanceCriteria {
			if err := validateCriterion(c); err != "" {
				errs = append(errs, fmt.Sprintf("story %s criterion %d: %s", s.ID, i, err))
			}
		}
	}

	if p.Constraints.MaxWorkers < 1 {
		errs = append(errs, "max_workers must be at least 1")
	}
	if p.Constraints.MaxIterationsPerStory < 1 {
		errs = append(errs, "max_iterations_per_story must be at least 1")
	}

	if len(errs) > 0 {
		return invalidResult(errs)
	}

	assignments := AssignModels(p)
	order, ok := topologicalSort(p.Stories)
	if !ok {
		// detectCycle already returned empty above, so this should not
		// happen; guard against it anyway rather than panic.
		return invalidResult([]string{"unable to compute a dependency order"})
	}
	cost := EstimateCost(p, assignments)

	result := validResult(cost, assignments, order)
	if int(p.Constraints.MaxWorkers) > len(p.Stories) {
		result.Warnings = append(result.Warnings, "max_workers exceeds the number of stories; some workers will stay idle")
	}
	return result
}

func validateCriterion(c AcceptanceCriterion) string {
	switch c.Type {
	case CriterionTest:
		if c.Command == "" {
			return "test criterion requires a command"
		}
	case CriterionFileExists:
		if c.Path == "" {
			return "file_exists criterion requires a path"
		}
	case CriterionPattern:
		if c.File == "" || c.Pattern == "" {
			return "pattern criterion requires both file and pattern"
		}
		if _, err := regexp.Compile(c.Pattern); err != nil {
			return fmt.Sprintf("pattern criterion has an invalid regex: %v", err)
		}
	case CriterionCustom:
		if c.Script == "" {
			return "custom criterion requires a script"
		}
	default:
		return fmt.Sprintf("unknown criterion type: %s", c.Type)
	}
	return ""
}

// detectCycle runs a three-color DFS over the dependency graph and returns
// the first cycle found as a path of story IDs, or nil if the graph is
// acyclic.
func detectCycle(stories []Story) []string {
	depsOf := make(map[string][]string, len(stories))
	for _, s := range stories {
		depsOf[s.ID] = s.Dependencies
	}

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(stories))
	var path []string

	var dfs func(id string) []string
	dfs = func(id string) []string {
		color[id] = gray
		path = append(path, id)
		for _, dep := range depsOf[id] {
			switch color[dep] {
			case gray:
				return append(append([]string{}, path...), dep)
			case white:
				if cycle := dfs(dep); cycle != nil {
					return cycle
				}
			}
		}
		path = path[:len(path)-1]
		color[id] = black
		return nil
	}

	for _, s := range stories {
		if color[s.ID] == white {
			if cycle := dfs(s.ID); cycle != nil {
				return cycle
			}
		}
	}
	return nil
}

// topologicalSort orders stories via Kahn's algorithm. ok is false only if
// the graph has a cycle (callers should run detectCycle first).
func topologicalSort(stories []Story) (order []string, ok bool) {
	inDegree := make(map[string]int, len(stories))
	adjacency := make(map[string][]string, len(stories))
	for _, s := range stories {
		if _, exists := inDegree[s.ID]; !exists {
			inDegree[s.ID] = 0
		}
		for _, dep := range s.Dependencies {
			adjacency[dep] = append(adjacency[dep], s.ID)
			inDegree[s.ID]++
		}
	}

	var queue []string
	for _, s := range stories {
		if inDegree[s.ID] == 0 {
			queue = append(queue, s.ID)
		}
	}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)
		for _, next := range adjacency[id] {
			inDegree[next]--
			if inDegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	return order, len(order) == len(stories)
}

// AssignModels picks a model per story: explicit story.Model wins, then
// story.Complexity's recommendation, then the PRD's default model.
func AssignModels(p PRD) map[string]ModelID {
	defaultModel := p.Constraints.defaultModel()
	out := make(map[string]ModelID, len(p.Stories))
	for _, s := range p.Stories {
		switch {
		case s.Model != "":
			out[s.ID] = s.Model
		case s.Complexity != "":
			out[s.ID] = s.Complexity.RecommendedModel()
		default:
			out[s.ID] = defaultModel
		}
	}
	return out
}

// EstimateCost sums a flat per-story token estimate, averaged over half the
// story's iteration budget, across assignments.
func EstimateCost(p PRD, assignments map[string]ModelID) float64 {
	avgIterations := float64(p.Constraints.MaxIterationsPerStory) / 2.0
	var total float64
	for _, s := range p.Stories {
		model := assignments[s.ID]
		total += model.CalculateCost(estimatedInputTokens, estimatedOutputTokens) * avgIterations
	}
	return total
}

// EstimateComplexity heuristically scores a story's difficulty from its
// shape (description length, criteria/dependency/hint counts, presence of a
// custom criterion) and buckets the score into a Complexity.
func EstimateComplexity(s Story) Complexity {
	score := 0

	switch {
	case len(s.Description) > 500:
		score += 2
	case len(s.Description) > 200:
		score += 1
	}

	switch {
	case len(s.AcceptanceCriteria) > 5:
		score += 2
	case len(s.AcceptanceCriteria) > 2:
		score += 1
	}

	switch {
	case len(s.Dependencies) > 3:
		score += 2
	case len(s.Dependencies) > 1:
		score += 1
	}

	if len(s.Hints) > 3 {
		score++
	}

	for _, c := range s.AcceptanceCriteria {
		if c.Type == CriterionCustom {
			score++
			break
		}
	}

	switch {
	case score >= 6:
		return ComplexityHigh
	case score >= 3:
		return ComplexityMedium
	default:
		return ComplexityLow
	}
}

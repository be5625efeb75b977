package prd

// GetCostBreakdown returns a rough per-story cost estimate for s, derived
// from each story's iteration count so far rather than real token counts
// (those aren't tracked per story, only in aggregate on the session).
func GetCostBreakdown(s *Session) []CostBreakdown {
	out := make([]CostBreakdown, 0, len(s.PRD.Stories))
	for _, story := range s.PRD.Stories {
		progress, ok := s.StoryProgress[story.ID]
		if !ok {
			continue
		}
		model := story.Model
		if model == "" {
			model = s.PRD.Constraints.defaultModel()
		}
		tokens := TokenUsage{
			Input:  uint64(progress.Iteration) * estimatedInputTokens,
			Output: uint64(progress.Iteration) * estimatedOutputTokens,
		}
		out = append(out, CostBreakdown{
			StoryID:    story.ID,
			Model:      model,
			Iterations: progress.Iteration,
			Tokens:     tokens,
			Cost:       model.CalculateCost(tokens.Input, tokens.Output),
		})
	}
	return out
}

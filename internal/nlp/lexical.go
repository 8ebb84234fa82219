package nlp

// matchLexical scores the input against every pattern with an edit-distance
// similarity ratio. Ties keep the earlier pattern (catalog order) because the
// comparison is strictly greater-than.
func (e *Engine) matchLexical(normalized string, threshold float64) *Match {
	var (
		best      string
		bestScore float64
		found     bool
	)
	for _, pattern := range e.catalog.AllPatterns() {
		score := similarityRatio(normalized, Normalize(pattern))
		if !found || score > bestScore {
			best = pattern
			bestScore = score
			found = true
		}
	}
	if !found || bestScore < threshold {
		return nil
	}
	tpl, ok := e.catalog.TemplateFor(best)
	if !ok {
		return nil
	}
	return &Match{Template: tpl, Pattern: best, Score: bestScore}
}

// similarityRatio maps edit distance into [0,1]; identical strings score 1.
func similarityRatio(a, b string) float64 {
	if a == b {
		return 1
	}
	la, lb := len([]rune(a)), len([]rune(b))
	longest := la
	if lb > longest {
		longest = lb
	}
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein(a, b))/float64(longest)
}

// levenshtein computes edit distance with a rolling single-row table.
func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr := make([]int, len(rb)+1)
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev = curr
	}
	return prev[len(rb)]
}

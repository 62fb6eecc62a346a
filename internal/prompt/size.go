package prompt

// charsPerToken is a conservative chars-per-token ratio for estimation.
const charsPerToken = 4

// contextHeadroom reserves a fraction of the model context for output tokens
// and protocol overhead.
const contextHeadroom = 0.90

// EstimateTokens returns a rough token estimate for the given text.
func EstimateTokens(text string) int {
	return len(text) / charsPerToken
}

// FitsContext reports whether the text fits the given model context limit,
// after reserving headroom for output. A zero or negative limit means the
// model is unknown and the text is assumed to fit. The returned estimate is
// the token count used for the check.
func FitsContext(text string, limit int) (fits bool, estimate int) {
	estimate = EstimateTokens(text)
	if limit <= 0 {
		return true, estimate
	}
	return estimate <= int(float64(limit)*contextHeadroom), estimate
}

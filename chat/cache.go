package chat

// recentTurnWindow is the size of the volatile history tail that stays
// uncached. Annotating the turn just before the window bounds the cached
// prefix to the stable portion of history, so a new turn never invalidates
// the whole prefix.
const recentTurnWindow = 5

// Strategy describes where cache breakpoints go for one request.
type Strategy struct {
	// Enabled is true when the model family honors cache directives.
	Enabled bool

	// Boundary is the history index of the last "old" turn, which carries
	// the single in-history breakpoint. -1 when no breakpoint applies.
	Boundary int
}

// SelectStrategy decides cache placement from the model's cache capability
// and the replayed history length. History shorter than the recent window
// gets no in-history breakpoint; the system prompt is annotated separately
// by the composer.
func SelectStrategy(capable bool, historyLen int) Strategy {
	s := Strategy{Enabled: capable, Boundary: -1}
	if !capable {
		return s
	}
	if historyLen > recentTurnWindow {
		s.Boundary = historyLen - recentTurnWindow - 1
	}
	return s
}

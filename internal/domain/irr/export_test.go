package irr

// WithUncheckedMaxDepth sets the solver depth without the positivity check of
// WithMaxDepth, so tests can hand the solvers a config they reject.
func WithUncheckedMaxDepth(n int) Option {
	return func(c *Calculator) {
		c.maxDepth = n
	}
}

package seal

import "io"

// WithRandom replaces the salt source.
func WithRandom(r io.Reader) Option {
	return func(s *Sealer) { s.random = r }
}

package segdict

// Option configures a Dict at construction. Mirrors the functional-options
// style llxisdsh/pb uses for MapOf (WithPresize, WithShrinkEnabled, etc).
type Option func(*dictConfig)

type dictConfig struct {
	capacity       int
	shrinkEnabled  bool
	minSegments    int
}

// defaultConstructCapacity is the capacity a Dict is sized for when the
// caller doesn't supply one, matching the abstract constructor signature
// in spec §6 (`new(capacity: int = 128)`).
const defaultConstructCapacity = 128

func defaultDictConfig() dictConfig {
	return dictConfig{
		capacity:      defaultConstructCapacity,
		shrinkEnabled: true,
		minSegments:   MinimumSegmentsCount,
	}
}

// WithCapacity presizes the Dict to hold at least n pairs without an
// initial resize.
func WithCapacity(n int) Option {
	return func(c *dictConfig) {
		if n > 0 {
			c.capacity = n
		}
	}
}

// WithShrinkDisabled turns off the shrink-on-remove policy: the Dict only
// ever grows, never shrinks its segment count back down.
func WithShrinkDisabled() Option {
	return func(c *dictConfig) {
		c.shrinkEnabled = false
	}
}

// WithMinSegments sets a floor on the number of segments a resize will
// ever shrink down to. Values below MinimumSegmentsCount are ignored.
func WithMinSegments(n int) Option {
	return func(c *dictConfig) {
		if n > MinimumSegmentsCount {
			c.minSegments = n
		}
	}
}

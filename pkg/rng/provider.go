package rng

// Provider hands out salted streams for one cycle seed. The same salt always
// returns the same stream instance, so repeated lookups continue the sequence
// instead of restarting it.
type Provider struct {
	seed    int64
	streams map[string]*LCG
}

// NewProvider creates a provider for the given seed.
func NewProvider(seed int64) *Provider {
	return &Provider{
		seed:    seed,
		streams: make(map[string]*LCG),
	}
}

// Seed returns the seed the provider was built from.
func (p *Provider) Seed() int64 {
	return p.seed
}

// Stream returns the stream for salt, creating it on first use. An empty salt
// yields the unsalted base stream.
func (p *Provider) Stream(salt string) *LCG {
	if s, ok := p.streams[salt]; ok {
		return s
	}
	var s *LCG
	if salt == "" {
		s = Seeded(p.seed)
	} else {
		s = SeededFor(p.seed, salt)
	}
	p.streams[salt] = s
	return s
}

// Draws returns the number of draws taken per salt, for profiling and replay logs.
func (p *Provider) Draws() map[string]int {
	out := make(map[string]int, len(p.streams))
	for salt, s := range p.streams {
		out[salt] = s.Draws()
	}
	return out
}

package crawler

import (
	"fmt"
	"net/url"
)

// Config captures the engine's knobs. It is decoupled from Viper so the
// engine can be configured directly in tests.
type Config struct {
	Sources     []Source
	Concurrency int
	MaxPages    int
}

// Validate checks for obviously bad configuration combinations.
func (c Config) Validate() error {
	if len(c.Sources) == 0 {
		return ErrNoSources
	}
	if c.Concurrency < 0 {
		return fmt.Errorf("crawler.concurrency must be >= 0")
	}
	if c.MaxPages < 0 {
		return fmt.Errorf("crawler.max_pages must be >= 0")
	}
	for i, src := range c.Sources {
		u, err := url.Parse(src.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("crawler.sources[%d].base_url %q is not an absolute URL", i, src.BaseURL)
		}
		if !src.Variant.Valid() {
			return fmt.Errorf("crawler.sources[%d].strategy %q: %w", i, src.Variant, ErrUnknownVariant)
		}
	}
	return nil
}

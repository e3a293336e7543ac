package geo

import (
	"fmt"
	"time"

	"github.com/evcraddock/carevisit/internal/visit"
)

// Provider kinds accepted in configuration.
const (
	KindFixed = "fixed"
	KindIP    = "ip"
	KindNone  = "none"
)

// Config selects and configures a Provider.
type Config struct {
	Provider string        `yaml:"provider,omitempty"`
	Lat      *float64      `yaml:"lat,omitempty"`
	Long     *float64      `yaml:"long,omitempty"`
	IPURL    string        `yaml:"ip_url,omitempty"`
	Timeout  time.Duration `yaml:"timeout,omitempty"`
}

// FromConfig builds the configured provider. With no provider named, a
// configured lat/long selects fixed and anything else selects none.
func FromConfig(cfg Config) (Provider, error) {
	kind := cfg.Provider
	if kind == "" {
		kind = KindNone
		if cfg.Lat != nil || cfg.Long != nil {
			kind = KindFixed
		}
	}

	var p Provider
	switch kind {
	case KindFixed:
		if cfg.Lat == nil || cfg.Long == nil {
			return nil, fmt.Errorf("fixed location provider needs both lat and long")
		}
		c := visit.Coordinate{Lat: *cfg.Lat, Long: *cfg.Long}
		if err := c.Validate(); err != nil {
			return nil, err
		}
		p = Fixed{Coordinate: c}
	case KindIP:
		p = NewIPLocator(cfg.IPURL)
	case KindNone:
		p = Unsupported{}
	default:
		return nil, fmt.Errorf("unknown location provider %q (want fixed, ip or none)", cfg.Provider)
	}

	return WithTimeout(p, cfg.Timeout), nil
}

package ratelimit

import "strings"

// unlimitedPaths are never rate limited for GET.
var unlimitedPaths = map[string]bool{
	"/":       true,
	"/health": true,
}

// MatchEndpoint returns the configuration governing a request, or nil when
// the default rates apply. An exact path match wins; otherwise the longest
// configured prefix ending in "/" is used. A config with an empty Method
// matches every method. Unlimited endpoints yield a config with no rates.
func MatchEndpoint(path, method string, configs []EndpointConfig) *EndpointConfig {
	if method == "GET" && unlimitedPaths[path] {
		return &EndpointConfig{Path: path, Method: method}
	}

	var best *EndpointConfig
	for i := range configs {
		cfg := &configs[i]
		if cfg.Method != "" && cfg.Method != method {
			continue
		}
		if cfg.Path == path {
			return cfg
		}
		if strings.HasSuffix(cfg.Path, "/") && strings.HasPrefix(path, cfg.Path) {
			if best == nil || len(cfg.Path) > len(best.Path) {
				best = cfg
			}
		}
	}
	return best
}

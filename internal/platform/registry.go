package platform

import (
	"fmt"
	"sort"

	"go.uber.org/zap"
)

// Registry maps platform names to their adapters. Only platforms with
// configured credentials get an entry; Get fails for everything else.
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry builds a registry from explicit adapters. Used in tests and
// by BuildRegistry.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[string]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Name()] = a
	}
	return r
}

// BuildRegistry constructs adapters for every platform present in creds.
// redirectBase is the externally reachable URL the per-platform callback
// paths are appended to.
func BuildRegistry(creds map[string]Credentials, redirectBase string, logger *zap.Logger) *Registry {
	r := &Registry{adapters: make(map[string]Adapter, len(creds))}

	for name, c := range creds {
		redirectURI := fmt.Sprintf("%s/v1/connect/%s/callback", redirectBase, name)

		switch name {
		case Facebook:
			r.adapters[name] = NewFacebook(c, redirectURI)
		case Instagram:
			r.adapters[name] = NewInstagram(c, redirectURI)
		case Twitter:
			r.adapters[name] = NewTwitter(c, redirectURI)
		case LinkedIn:
			r.adapters[name] = NewLinkedIn(c, redirectURI)
		case TikTok:
			r.adapters[name] = NewTikTok(c, redirectURI)
		case YouTube:
			r.adapters[name] = NewYouTube(c, redirectURI, logger)
		default:
			logger.Warn("ignoring credentials for unknown platform", zap.String("platform", name))
			continue
		}
	}

	logger.Info("platform registry built", zap.Strings("platforms", r.Names()))
	return r
}

// Get returns the adapter for a platform name.
func (r *Registry) Get(name string) (Adapter, error) {
	adapter, ok := r.adapters[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrNotConfigured)
	}
	return adapter, nil
}

// Names lists the configured platforms, sorted for stable logging.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

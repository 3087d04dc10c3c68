package platforms

import (
	"fmt"

	"github.com/dmitrijs2005/crosspost/internal/common"
	"github.com/dmitrijs2005/crosspost/internal/server/models"
)

// Registry is the closed set of adapters, dispatched by platform.
type Registry struct {
	adapters map[models.Platform]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[models.Platform]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Platform()] = a
	}
	return r
}

// NewDefaultRegistry wires every supported platform against the live APIs.
func NewDefaultRegistry(opts Options) *Registry {
	return NewRegistry(
		NewFacebook(opts, FacebookEndpoints{}),
		NewInstagram(opts, FacebookEndpoints{}),
		NewLinkedIn(opts, LinkedInEndpoints{}),
		NewTwitter(opts, TwitterEndpoints{}),
	)
}

func (r *Registry) Get(p models.Platform) (Adapter, error) {
	a, ok := r.adapters[p]
	if !ok {
		return nil, fmt.Errorf("%w: %s", common.ErrUnsupportedPlatform, p)
	}
	return a, nil
}

// Platforms lists the registered platforms.
func (r *Registry) Platforms() []models.Platform {
	out := make([]models.Platform, 0, len(r.adapters))
	for _, p := range models.Platforms {
		if _, ok := r.adapters[p]; ok {
			out = append(out, p)
		}
	}
	return out
}

package services

import (
	"fmt"
	"sync"
	"time"

	"github.com/stripe/stripe-go/v76/price"
)

// PriceResolver maps payment-provider price IDs to tiers. Static mappings
// from configuration win; anything else is looked up from the provider's
// price metadata and cached with a fixed TTL. The cache is ephemeral and
// safe to lose.
type PriceResolver struct {
	static map[string]string
	ttl    time.Duration
	lookup func(priceID string) (string, error)

	mu    sync.Mutex
	cache map[string]cachedTier
}

type cachedTier struct {
	tier      string
	expiresAt time.Time
}

func NewPriceResolver(static map[string]string, ttl time.Duration) *PriceResolver {
	return &PriceResolver{
		static: static,
		ttl:    ttl,
		lookup: stripePriceLookup,
		cache:  make(map[string]cachedTier),
	}
}

// NewPriceResolverWithLookup injects a custom lookup, used by tests and by
// deployments that don't expose tier metadata on prices.
func NewPriceResolverWithLookup(static map[string]string, ttl time.Duration, lookup func(string) (string, error)) *PriceResolver {
	r := NewPriceResolver(static, ttl)
	r.lookup = lookup
	return r
}

// Resolve returns the tier for a price ID.
func (r *PriceResolver) Resolve(priceID string) (string, error) {
	if priceID == "" {
		return "", ErrUnknownPrice
	}
	if tier, ok := r.static[priceID]; ok {
		return tier, nil
	}

	now := time.Now()
	r.mu.Lock()
	if entry, ok := r.cache[priceID]; ok && now.Before(entry.expiresAt) {
		r.mu.Unlock()
		return entry.tier, nil
	}
	r.mu.Unlock()

	tier, err := r.lookup(priceID)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrUnknownPrice, priceID, err)
	}

	r.mu.Lock()
	r.cache[priceID] = cachedTier{tier: tier, expiresAt: now.Add(r.ttl)}
	r.mu.Unlock()
	return tier, nil
}

// stripePriceLookup reads the tier from the price object's metadata.
func stripePriceLookup(priceID string) (string, error) {
	p, err := price.Get(priceID, nil)
	if err != nil {
		return "", err
	}
	if tier, ok := p.Metadata["tier"]; ok && tier != "" {
		return tier, nil
	}
	return "", fmt.Errorf("price %s carries no tier metadata", priceID)
}

package acquire

import (
	"sync"
	"time"
)

// Credential is one API key drawn from a family pool.
type Credential struct {
	Family string
	Key    string
}

// FamilyCredentials is the rotator's view of one family for the status API.
// Keys are reported masked.
type FamilyCredentials struct {
	Family    string      `json:"family"`
	Keys      []KeyStatus `json:"keys"`
	Available int         `json:"available"`
}

type KeyStatus struct {
	Key       string    `json:"key"`
	CoolUntil time.Time `json:"cool_until,omitempty"`
}

type pooledKey struct {
	value     string
	coolUntil time.Time
}

type keyPool struct {
	keys []*pooledKey
	next int
}

// Rotator owns the per-family credential pools. Acquire hands out the next
// key in round-robin order, skipping keys still cooling down after quota or
// auth failures. Rotator state is independent of breaker state: one spent
// key does not imply the provider is down.
type Rotator struct {
	defaultCooldown time.Duration

	mu    sync.Mutex
	pools map[string]*keyPool

	now func() time.Time
}

func NewRotator(pools map[string][]string, defaultCooldown time.Duration) *Rotator {
	if defaultCooldown <= 0 {
		defaultCooldown = 5 * time.Minute
	}
	r := &Rotator{
		defaultCooldown: defaultCooldown,
		pools:           make(map[string]*keyPool, len(pools)),
		now:             time.Now,
	}
	for family, keys := range pools {
		p := &keyPool{}
		for _, k := range keys {
			if k == "" {
				continue
			}
			p.keys = append(p.keys, &pooledKey{value: k})
		}
		if len(p.keys) > 0 {
			r.pools[family] = p
		}
	}
	return r
}

// Acquire returns the next usable key for the family, or false when every
// key is cooling down (or the family has no keys at all). Callers treat
// false as a hard failure for the family until the earliest cooldown ends.
func (r *Rotator) Acquire(family string) (Credential, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.pools[family]
	if !ok {
		return Credential{}, false
	}
	now := r.now()
	for i := 0; i < len(p.keys); i++ {
		k := p.keys[(p.next+i)%len(p.keys)]
		if now.Before(k.coolUntil) {
			continue
		}
		p.next = (p.next + i + 1) % len(p.keys)
		return Credential{Family: family, Key: k.value}, true
	}
	return Credential{}, false
}

// MarkExhausted puts the key on cooldown, preferring the provider-supplied
// retry hint over the default backoff.
func (r *Rotator) MarkExhausted(cred Credential, retryAfter time.Duration) {
	if retryAfter <= 0 {
		retryAfter = r.defaultCooldown
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.pools[cred.Family]
	if !ok {
		return
	}
	until := r.now().Add(retryAfter)
	for _, k := range p.keys {
		if k.value == cred.Key && until.After(k.coolUntil) {
			k.coolUntil = until
		}
	}
}

// HasKeys reports whether the family was configured with at least one key.
func (r *Rotator) HasKeys(family string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.pools[family]
	return ok
}

// Snapshot reports every pool with keys masked down to their last 4 runes.
func (r *Rotator) Snapshot() []FamilyCredentials {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]FamilyCredentials, 0, len(r.pools))
	now := r.now()
	for family, p := range r.pools {
		fc := FamilyCredentials{Family: family}
		for _, k := range p.keys {
			ks := KeyStatus{Key: maskKey(k.value)}
			if now.Before(k.coolUntil) {
				ks.CoolUntil = k.coolUntil
			} else {
				fc.Available++
			}
			fc.Keys = append(fc.Keys, ks)
		}
		out = append(out, fc)
	}
	return out
}

func maskKey(k string) string {
	runes := []rune(k)
	if len(runes) <= 4 {
		return "****"
	}
	return "****" + string(runes[len(runes)-4:])
}

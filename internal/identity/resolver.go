// Package identity derives stable identifiers for entities created before the remote store
// assigns one. Only the name strategy is guaranteed to reproduce the same id after a reload.
package identity

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Strategy names the derivation that produced an id
type Strategy string

const (
	StrategyName      Strategy = "name"
	StrategyContent   Strategy = "content"
	StrategyTimestamp Strategy = "timestamp"
	StrategyFallback  Strategy = "fallback"
)

// Stable reports whether ids produced by the strategy survive a reload unchanged
func (s Strategy) Stable() bool {
	return s == StrategyName
}

// The content hash only looks at this window of the payload, so two payloads that share
// it collide. Changing these values changes every content-derived id already stored.
const (
	hashWindowOffset = 100
	hashWindowLength = 100
)

// Source carries whatever is known about an entity at creation time
type Source struct {
	Name      string
	Content   []byte
	CreatedAt time.Time
	Index     int
}

// Resolver derives ids from a Source
type Resolver struct {
	now func() time.Time
}

// NewResolver creates a resolver using the wall clock
func NewResolver() *Resolver {
	return &Resolver{now: time.Now}
}

// NewResolverWithClock creates a resolver with an injected clock
func NewResolverWithClock(now func() time.Time) *Resolver {
	return &Resolver{now: now}
}

// Resolve returns the id for src and the strategy that produced it
func (r *Resolver) Resolve(src Source) (string, Strategy) {
	if token := Normalize(src.Name); token != "" {
		return token, StrategyName
	}
	if len(src.Content) > 0 {
		return "hash_" + ContentHash(src.Content), StrategyContent
	}
	if !src.CreatedAt.IsZero() {
		return fmt.Sprintf("date_%d", src.CreatedAt.UnixMilli()), StrategyTimestamp
	}
	return fmt.Sprintf("item_%d_%d", src.Index, r.now().UnixMilli()), StrategyFallback
}

// Normalize lowercases name and drops everything that is not an ASCII letter or digit
func Normalize(name string) string {
	var b strings.Builder
	for _, c := range strings.ToLower(name) {
		if (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') {
			b.WriteRune(c)
		}
	}
	return b.String()
}

// ContentHash is a 32-bit multiplicative string hash (h = h*31 + c with int32
// wraparound) over a fixed window of content, rendered in base 36.
func ContentHash(content []byte) string {
	window := content
	if len(content) > hashWindowOffset {
		end := hashWindowOffset + hashWindowLength
		if end > len(content) {
			end = len(content)
		}
		window = content[hashWindowOffset:end]
	}

	var h int32
	for _, c := range window {
		h = h*31 + int32(c)
	}

	v := int64(h)
	if v < 0 {
		v = -v
	}
	return strconv.FormatInt(v, 36)
}

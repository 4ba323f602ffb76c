package service

import (
	"context"

	"github.com/gofhir/epadoc"
	"github.com/gofhir/epadoc/cache"
	"github.com/gofhir/epadoc/model"
)

// Chain is an ordered list of checkers. The order is the order in which
// their messages are reported.
type Chain struct {
	checkers []Checker
}

// NewChain creates a chain of the given checkers.
func NewChain(checkers ...Checker) *Chain {
	return &Chain{checkers: checkers}
}

// Add appends a checker to the chain.
func (c *Chain) Add(checker Checker) {
	c.checkers = append(c.checkers, checker)
}

// Checkers returns the checkers in order.
func (c *Chain) Checkers() []Checker {
	out := make([]Checker, len(c.checkers))
	copy(out, c.checkers)
	return out
}

// Names returns the checker names in order.
func (c *Chain) Names() []string {
	names := make([]string, len(c.checkers))
	for i, checker := range c.checkers {
		names[i] = checker.Name()
	}
	return names
}

// Len returns the number of checkers.
func (c *Chain) Len() int {
	return len(c.checkers)
}

// --- Caching ---

// ResultCache memoizes checker results by key.
type ResultCache = cache.Memo[[]epadoc.Message]

// NewResultCache creates an empty, unbounded ResultCache.
func NewResultCache() *ResultCache {
	return cache.NewMemo[[]epadoc.Message]()
}

// CachingChecker memoizes a checker's messages per document fingerprint.
// Faults are not cached.
type CachingChecker struct {
	checker Checker
	cache   *ResultCache
}

// NewCachingChecker wraps checker with a result cache.
func NewCachingChecker(checker Checker, c *ResultCache) *CachingChecker {
	return &CachingChecker{checker: checker, cache: c}
}

// Name returns the wrapped checker's name.
func (c *CachingChecker) Name() string {
	return c.checker.Name()
}

// Unwrap returns the wrapped checker.
func (c *CachingChecker) Unwrap() Checker {
	return c.checker
}

// Check returns the cached messages for doc, running the wrapped checker on
// the first request for this content.
func (c *CachingChecker) Check(ctx context.Context, doc *model.Document) ([]epadoc.Message, error) {
	msgs, _, err := c.CheckCached(ctx, doc)
	return msgs, err
}

// CheckCached is Check that also reports whether the messages came from the
// cache. The returned slice is a copy.
//
// Concurrent callers for the same content share one run, so the run does
// not inherit the cancellation of whichever caller started it.
func (c *CachingChecker) CheckCached(ctx context.Context, doc *model.Document) ([]epadoc.Message, bool, error) {
	key := CacheKey(c.checker.Name(), doc)
	shared := context.WithoutCancel(ctx)
	msgs, cached, err := c.cache.Do(key, func() ([]epadoc.Message, error) {
		return SafeCheck(shared, c.checker, doc)
	})
	if err != nil {
		return nil, false, err
	}
	if msgs == nil {
		return nil, cached, nil
	}
	out := make([]epadoc.Message, len(msgs))
	copy(out, msgs)
	return out, cached, nil
}

// CacheKey identifies a checker result: the checker name and the sha256 of
// the document bytes.
func CacheKey(checker string, doc *model.Document) string {
	return checker + "\x00" + doc.Fingerprint()
}

// NewCachingChain wraps every checker of chain with one shared result cache.
func NewCachingChain(chain *Chain, c *ResultCache) *Chain {
	wrapped := make([]Checker, 0, chain.Len())
	for _, checker := range chain.checkers {
		wrapped = append(wrapped, NewCachingChecker(checker, c))
	}
	return NewChain(wrapped...)
}

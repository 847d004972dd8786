// Package aggregator fans a query out to several source adapters, merges the
// results and fronts single adapters with a freshness cache.
//
// FetchAll isolates failures: a source that errors contributes an empty
// slice under its key and the others are unaffected. Flatten produces the
// merged, recency-sorted view.
//
// CachedSource implements the cached-or-fresh read path with two failure
// policies. Best-effort sources log the failure and return nothing; strict
// sources surface the *domain.UpstreamError so the API boundary can map it.
// Neither policy caches a failure.
package aggregator

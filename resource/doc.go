// Package resource provides a controller for the resources shared by
// the page allocator and the SSD tier: a hard memory budget, an IO
// byte-rate limit and a bounded pool of background worker slots.
//
// Memory acquisition is non-blocking (TryAcquire semantics): the page
// budget is the release valve between cache entries and unrelated
// allocations, and the caller - not the controller - decides whether a
// denied request should trigger eviction, a retry or a failure.
package resource

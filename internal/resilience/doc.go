// Package resilience guards calls to an unstable dependency.
//
// A Guard composes three layers around every call, outermost first:
//
//	Retry -> Breaker -> Timeout -> operation
//
// Build one Guard per upstream target at startup and share it by
// reference; the breaker's failure memory lives in that instance.
package resilience

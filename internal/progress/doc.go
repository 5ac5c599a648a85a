// Package progress tracks per-batch counters for a harvest run so they can be
// logged at batch completion and served by the status endpoint.
package progress

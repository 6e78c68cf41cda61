// Package connectors holds the source adapters that feed search-all. Each
// subpackage talks to one upstream API and implements driven.SourceAdapter.
// Call runs one upstream request under the adapter's rate limiter and
// retry policy.
package connectors

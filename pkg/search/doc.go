// Package search provides web search providers for the research engine.
//
// Every provider implements research.SearchProvider. Providers may return an
// empty result list; the engine treats that as a valid outcome. Transport
// and rate-limit errors are returned as-is and handled by the engine's
// degrade logic.
package search

// Package services implements the driving port interfaces.
//
// RetrievalService fans a keyword search out to every source adapter and
// persists the chunked passages. VectorSearchService ranks stored passages
// against a query. Orchestrator drives a knowledge graph from a query to
// articles.json and graph.json, recording each stage in the status store.
// SettingsService materialises configuration; Scheduler runs maintenance.
package services

// Package driven provides interfaces for infrastructure adapters
// (secondary/outbound ports): the scrape backend client, embedding
// providers, the vector store, and text processing utilities.
package driven

// Package services implements the core use cases: change detection,
// embedding orchestration, ingestion coordination, and search.
package services

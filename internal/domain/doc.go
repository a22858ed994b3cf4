// Package domain holds the core types of the viewer identity system: the
// canonical Viewer record, persisted provider tokens, denormalized profiles,
// and the repository interfaces the adapters implement.
package domain

// ABOUTME: Package contract holds tests that pin the widget's external surfaces
// ABOUTME: The backend JSON shapes and the on-disk storage schema

// Package contract has no code of its own. Its tests fail when a JSON field
// the backend depends on, or a column of the persistent store, is renamed
// or removed.
package contract

//go:build noreference

// Package reference is left out of builds tagged noreference.
package reference

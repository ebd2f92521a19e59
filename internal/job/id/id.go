// Package id provides unique identifier generation for jobs.
package id

import (
	"github.com/google/uuid"
)

// Prefix starts every job ID.
const Prefix = "job-"

// Generate creates a new unique job ID.
// Format: job-<uuidv7>, so IDs sort by creation time.
// Example: job-0199f6a2-7c1e-7b3a-9d4f-2b8c5e1a0f33
func Generate() string {
	u, err := uuid.NewV7()
	if err != nil {
		// Fallback to a random UUID if the clock source fails
		return Prefix + uuid.NewString()
	}
	return Prefix + u.String()
}

// Valid reports whether s looks like an ID produced by Generate.
func Valid(s string) bool {
	if len(s) <= len(Prefix) || s[:len(Prefix)] != Prefix {
		return false
	}
	_, err := uuid.Parse(s[len(Prefix):])
	return err == nil
}

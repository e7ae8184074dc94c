// Package id provides unique identifier generation for generation runs.
package id

import "github.com/google/uuid"

// Generate creates a new unique run ID.
// Format: run-<uuidv7>, so IDs sort by creation time.
// Example: run-01929c2e-7c4b-7a8e-9f1d-3b6c2a1e5d40
func Generate() string {
	u, err := uuid.NewV7()
	if err != nil {
		// Fall back to a random UUID if the clock source fails
		return "run-" + uuid.NewString()
	}
	return "run-" + u.String()
}

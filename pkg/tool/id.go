package tool

import "github.com/google/uuid"

// GenerateUUIDV7 returns a time-ordered id used for primary keys.
func GenerateUUIDV7() string {
	return uuid.Must(uuid.NewV7()).String()
}

// GenerateTraceID returns a random request trace id.
func GenerateTraceID() string {
	return uuid.NewString()
}

package commands

import "time"

const (
	apiTimeout = 30 * time.Second

	// Long-running views (chat, notifications --watch) are not bounded by
	// apiTimeout; each operation they issue is.
	uploadTimeout = 2 * time.Minute
)

// glasser - Glasser Study from the terminal
//
// Reads and writes chats, goals, posts, groups, notifications and the
// profile of the signed-in user through the Glasser Study GraphQL API.
// Outcomes are reported as notices printed when the command finishes.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/golang/glog"

	"github.com/glasserstudy/glasser/internal/commands"
)

// Version information (set by goreleaser)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.SetVersionInfo(version, commit, date)

	err := commands.Execute()
	if err != nil && !errors.Is(err, commands.ErrReported) {
		fmt.Fprintln(os.Stderr, err)
	}
	// Print notices at the end of every command
	commands.PrintNotifications(os.Stderr)
	glog.Flush()
	if err != nil {
		os.Exit(1)
	}
}

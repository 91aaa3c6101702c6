// Command digest runs the minute-taking pipeline against an exported chat
// transcript, outside the chat, and browses the minutes archive.
package main

import (
	"context"
	"os"
)

func main() {
	if err := newRootCommand(defaultDeps()).ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

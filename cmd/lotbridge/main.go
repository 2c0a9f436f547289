// Command lotbridge runs the legacy token, bridge and lot ledgers over a
// SQLite transaction log.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/roach88/lotbridge/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	err := cmd.ExecuteContext(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(cli.GetExitCode(err))
}

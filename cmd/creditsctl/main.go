// Command creditsctl administers a credit ledger store.
package main

import (
	"fmt"
	"os"

	"github.com/xraph/credits/internal/cli"
)

var version = "dev"

func main() {
	if err := cli.NewRootCmd(version).Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// ABOUTME: Entry point for the novorio CLI
// ABOUTME: Session, player and farm commands for the Novo Rio backend

package main

import (
	"fmt"
	"os"

	"github.com/markalston/novorio/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

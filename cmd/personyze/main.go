// Command personyze reports visitor activity to Personyze and prints the
// personalized result.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/personyze/tracker-go/internal/cli"
)

func main() {
	os.Exit(run())
}

func run() int {
	err := cli.NewRootCommand().Execute()
	if err == nil {
		return cli.ExitSuccess
	}

	// Commands report their own failures; anything else is a usage error
	// raised by cobra.
	var exitErr *cli.ExitError
	if !errors.As(err, &exitErr) {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	return cli.GetExitCode(err)
}

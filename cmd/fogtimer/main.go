// Command fogtimer times Freezing of Gait episodes during clinical gait trials.
package main

import (
	"context"
	"os"

	"github.com/roach88/fogtimer/internal/cli"
)

func main() {
	os.Exit(cli.Execute(context.Background(), os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

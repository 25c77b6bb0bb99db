// Command carinspect is a small diagnostic tool for CAR archives: it
// prints root CIDs, lists blocks, or walks a whole archive computing a
// summary report, validating every block's hash along the way.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "carinspect",
		Usage: "inspect CARv1/CARv2 archives",
		Commands: []*cli.Command{
			rootsCommand,
			listCommand,
			inspectCommand,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

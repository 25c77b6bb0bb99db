package main

import (
	"fmt"
	"os"

	"github.com/filecoin-project/go-mpool/car"
	"github.com/urfave/cli/v2"
)

var rootsCommand = &cli.Command{
	Name:      "roots",
	Usage:     "print the root CIDs of a CAR archive",
	ArgsUsage: "<car-file>",
	Action:    doRoots,
}

func doRoots(c *cli.Context) error {
	cs, closeFn, err := openCarStream(c)
	if err != nil {
		return err
	}
	defer closeFn()

	for _, r := range cs.HeaderV1.Roots {
		fmt.Println(r.String())
	}
	return nil
}

// openCarStream opens the archive named by the command's first argument,
// or reads from stdin if no argument is given. A named file is opened
// seekably so CarStream can look past its read-ahead buffer for a CARv2
// pragma; stdin is read as an unseekable stream.
func openCarStream(c *cli.Context) (*car.CarStream, func() error, error) {
	if c.Args().Len() >= 1 {
		f, err := os.Open(c.Args().First())
		if err != nil {
			return nil, nil, err
		}
		cs, err := car.NewCarStream(f)
		if err != nil {
			f.Close()
			return nil, nil, err
		}
		return cs, f.Close, nil
	}

	cs, err := car.NewCarStreamUnsafe(os.Stdin)
	if err != nil {
		return nil, nil, err
	}
	return cs, func() error { return nil }, nil
}

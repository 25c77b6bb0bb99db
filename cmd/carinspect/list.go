package main

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"
)

var listCommand = &cli.Command{
	Name:      "list",
	Usage:     "list the blocks in a CAR archive",
	ArgsUsage: "<car-file>",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "human", Usage: "print block sizes in human-readable form"},
	},
	Action: doList,
}

func doList(c *cli.Context) error {
	cs, closeFn, err := openCarStream(c)
	if err != nil {
		return err
	}
	defer closeFn()

	human := c.Bool("human")
	for {
		blk, err := cs.Next()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		offset := cs.Pos() - int64(len(blk.Data))
		if human {
			fmt.Printf("%-12d %s [%s]\n", offset, blk.Cid, humanize.Bytes(uint64(len(blk.Data))))
		} else {
			fmt.Printf("%-12d %s [%d]\n", offset, blk.Cid, len(blk.Data))
		}
	}
}

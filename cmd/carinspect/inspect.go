package main

import (
	"fmt"
	"io"

	"github.com/multiformats/go-multicodec"
	"github.com/urfave/cli/v2"
)

var inspectCommand = &cli.Command{
	Name:      "inspect",
	Usage:     "walk a CAR archive, validate every block, and print a summary report",
	ArgsUsage: "<car-file>",
	Action:    doInspect,
}

type codecCount struct {
	count uint64
	bytes uint64
}

func doInspect(c *cli.Context) error {
	cs, closeFn, err := openCarStream(c)
	if err != nil {
		return err
	}
	defer closeFn()

	byCodec := map[uint64]*codecCount{}
	var blocks, totalBytes uint64
	var invalid uint64

	for {
		blk, err := cs.Next()
		if err != nil {
			if err == io.EOF {
				break
			}
			return err
		}
		blocks++
		size := uint64(len(blk.Data))
		totalBytes += size

		codec := blk.Cid.Prefix().Codec
		cc, ok := byCodec[codec]
		if !ok {
			cc = &codecCount{}
			byCodec[codec] = cc
		}
		cc.count++
		cc.bytes += size

		if err := blk.Validate(); err != nil {
			invalid++
		}
	}

	fmt.Printf("version: %d\n", cs.HeaderV1.Version)
	fmt.Printf("roots: %d\n", len(cs.HeaderV1.Roots))
	if cs.HeaderV2 != nil {
		fmt.Printf("wrapped in CARv2: data offset %d, data size %d, has index %v\n",
			cs.HeaderV2.DataOffset, cs.HeaderV2.DataSize, cs.HeaderV2.HasIndex())
	}
	fmt.Printf("blocks: %d (%d bytes)\n", blocks, totalBytes)
	if invalid > 0 {
		fmt.Printf("invalid blocks: %d\n", invalid)
	}
	for codec, cc := range byCodec {
		fmt.Printf("  %s: %d blocks, %d bytes\n", multicodec.Code(codec).String(), cc.count, cc.bytes)
	}
	return nil
}

// Command ln creates a hard or (with -s) symbolic link inside an ext2
// image.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/Carben-dev/ext2fs-simple-utilities/cmd/ext2cli"
	"github.com/Carben-dev/ext2fs-simple-utilities/volume"
)

func main() {
	app := &cli.App{
		Name:      "ln",
		Usage:     "Create a hard or symbolic link in an ext2 image",
		ArgsUsage: "IMAGE [-s] SRC DST",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "s", Usage: "create a symbolic link"},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(c *cli.Context) error {
	// Flag parsing stops at IMAGE, so a -s given after it arrives here as a
	// positional argument.
	args := c.Args().Slice()
	symbolic := c.Bool("s")
	if len(args) == 4 && args[1] == "-s" {
		symbolic = true
		args = []string{args[0], args[2], args[3]}
	}
	if len(args) != 3 {
		return cli.Exit(fmt.Sprintf("usage: %s IMAGE [-s] SRC DST", c.App.Name), 1)
	}

	v, err := volume.Open(args[0])
	if err != nil {
		return cli.Exit(err, 1)
	}
	defer v.Close()

	src, dst := args[1], args[2]
	if symbolic {
		return ext2cli.ExitErrno(v.LinkSymbolic(src, dst))
	}
	return ext2cli.ExitErrno(v.Link(src, dst))
}

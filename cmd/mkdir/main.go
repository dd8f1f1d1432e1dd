// Command mkdir creates an empty directory inside an ext2 image.
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
		Name:      "mkdir",
		Usage:     "Create an empty directory in an ext2 image",
		ArgsUsage: "IMAGE ABSOLUTE-PATH",
		Action:    run,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(c *cli.Context) error {
	if c.NArg() != 2 {
		return cli.Exit(fmt.Sprintf("usage: %s IMAGE ABSOLUTE-PATH", c.App.Name), 1)
	}

	v, err := volume.Open(c.Args().Get(0))
	if err != nil {
		return cli.Exit(err, 1)
	}
	defer v.Close()

	return ext2cli.ExitErrno(v.Mkdir(c.Args().Get(1)))
}

// Command cp copies a host file's contents into a new regular file inside
// an ext2 image.
package main

import (
	"fmt"
	"log"
	"os"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/Carben-dev/ext2fs-simple-utilities/cmd/ext2cli"
	"github.com/Carben-dev/ext2fs-simple-utilities/volume"
)

func main() {
	app := &cli.App{
		Name:      "cp",
		Usage:     "Copy a host file into an ext2 image",
		ArgsUsage: "IMAGE HOST-PATH ABSOLUTE-PATH",
		Action:    run,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(c *cli.Context) error {
	if c.NArg() != 3 {
		return cli.Exit(fmt.Sprintf("usage: %s IMAGE HOST-PATH ABSOLUTE-PATH", c.App.Name), 1)
	}

	buf, err := os.ReadFile(c.Args().Get(1))
	if err != nil {
		return cli.Exit(err, int(syscall.ENOENT))
	}

	v, err := volume.Open(c.Args().Get(0))
	if err != nil {
		return cli.Exit(err, 1)
	}
	defer v.Close()

	return ext2cli.ExitErrno(v.CopyIn(buf, c.Args().Get(2)))
}

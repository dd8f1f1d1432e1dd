// Command checker runs the ext2 consistency checker against an image,
// repairing what it finds and reporting the fixes to stdout.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/Carben-dev/ext2fs-simple-utilities/volume"
)

func main() {
	app := &cli.App{
		Name:      "checker",
		Usage:     "Check and repair an ext2 image's consistency",
		ArgsUsage: "IMAGE",
		Action:    run,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit(fmt.Sprintf("usage: %s IMAGE", c.App.Name), 1)
	}

	v, err := volume.Open(c.Args().Get(0))
	if err != nil {
		return cli.Exit(err, 1)
	}
	defer v.Close()

	res := v.Check()
	for _, msg := range res.Messages {
		fmt.Println(msg)
	}
	fmt.Println(res.Summary())
	return nil
}

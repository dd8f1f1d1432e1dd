// Package ext2cli holds the few lines shared by the command binaries that
// report an errno (all of them except checker): turning a *ext2err.Error
// into the urfave/cli exit code spec.md §6 wants.
package ext2cli

import (
	"github.com/urfave/cli/v2"

	"github.com/Carben-dev/ext2fs-simple-utilities/ext2err"
)

// ExitErrno maps err onto a cli.ExitCoder using its POSIX errno, or exit
// code 1 if err isn't one of ours.
func ExitErrno(err error) error {
	if err == nil {
		return nil
	}
	if e, ok := err.(*ext2err.Error); ok {
		return cli.Exit(e, int(e.Errno()))
	}
	return cli.Exit(err, 1)
}

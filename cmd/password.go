package cmd

import (
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/anicoll/homehub/pkg/hasher"
)

// HashPasswordCommand prints the bcrypt hash of its single argument.
func HashPasswordCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return errors.New("expected exactly one password argument")
	}
	hash, err := hasher.HashPassword([]byte(c.Args().First()))
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(c.App.Writer, hash)
	return err
}

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/L-L777/classGrabber/internal/web"
)

func newPasswdCmd() *cobra.Command {
	var password string

	c := &cobra.Command{
		Use:   "passwd",
		Short: "Hash a web access password for access_password_bcrypt",
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				return fmt.Errorf("--password is required")
			}
			hash, err := web.HashPassword(password)
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "access_password_bcrypt: %s\n", hash)
			return nil
		},
	}

	c.Flags().StringVar(&password, "password", "", "password to hash")
	return c
}

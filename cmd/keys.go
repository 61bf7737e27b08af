package cmd

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newKeysCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keys",
		Short: "Generate cookie_hash_key and cookie_block_key values (base64)",
		RunE: func(cmd *cobra.Command, args []string) error {
			hash := make([]byte, 32)
			block := make([]byte, 32)
			if _, err := rand.Read(hash); err != nil {
				return err
			}
			if _, err := rand.Read(block); err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "cookie_hash_key: %s\n", base64.StdEncoding.EncodeToString(hash))
			fmt.Fprintf(os.Stdout, "cookie_block_key: %s\n", base64.StdEncoding.EncodeToString(block))
			return nil
		},
	}
}

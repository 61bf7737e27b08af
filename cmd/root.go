package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	CommitSHA = "none"
	BuildDate = "unknown"
)

func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "classgrabd",
		Short: "Course grabber: retries enrollment requests until every watched course is confirmed",
	}

	root.PersistentFlags().String("config", "config.yaml", "path to the config file")

	root.AddCommand(newVersionCmd())
	root.AddCommand(newKeysCmd())
	root.AddCommand(newPasswdCmd())
	root.AddCommand(newServerCmd())
	root.AddCommand(newCourseCmd())

	return root
}

func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

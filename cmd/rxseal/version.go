package main

import (
	"github.com/spf13/cobra"

	"github.com/hengadev/rxseal"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Println(rxseal.VersionInfo())
		},
	}
}

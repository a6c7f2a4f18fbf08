package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conorfennell/skillcards/internal/fingerprint"
)

func newFingerprintCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fingerprint <question> <answer>",
		Short: "Print the duplicate-detection fingerprint of a card",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), fingerprint.Compute(args[0], args[1]))
		},
	}
}

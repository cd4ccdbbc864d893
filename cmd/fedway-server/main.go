/*
Copyright Fedway Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package main

import (
	"github.com/spf13/cobra"
	"github.com/trustbloc/logutil-go/pkg/log"

	"github.com/fedway/fedway/cmd/fedway-server/startcmd"
)

var logger = log.New("fedway-server")

func main() {
	rootCmd := &cobra.Command{
		Use: "fedway-server",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.HelpFunc()(cmd, args)
		},
	}

	rootCmd.AddCommand(startcmd.GetStartCmd())

	if err := rootCmd.Execute(); err != nil {
		logger.Fatal("Failed to run fedway-server.", log.WithError(err))
	}
}

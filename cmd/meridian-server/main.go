/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package main Meridian.
//
// Terms Of Service:
//
//	Schemes: http
//	Version: 1.0
//	License: SPDX-License-Identifier: Apache-2.0
//
// swagger:meta
package main

import (
	"github.com/spf13/cobra"
	"github.com/trustbloc/logutil-go/pkg/log"

	"github.com/meridianfed/meridian/cmd/meridian-server/startcmd"
)

var logger = log.New("meridian-server")

func main() {
	rootCmd := &cobra.Command{
		Use: "meridian-server",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.HelpFunc()(cmd, args)
		},
	}

	rootCmd.AddCommand(startcmd.GetStartCmd())

	if err := rootCmd.Execute(); err != nil {
		logger.Fatal("Failed to run Meridian server.", log.WithError(err))
	}
}

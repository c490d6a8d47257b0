// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// The vtape program creates, inspects, verifies and edits virtual tape media.
package main

import (
	"log"
	"os"

	"github.com/cockroachdb/vtape"
	"github.com/cockroachdb/vtape/tool"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "vtape [command] (flags)",
	Short: "virtual tape media tool",
	Long:  ``,
	// Usage is not useful once a command has parsed its arguments.
	SilenceUsage: true,
}

func main() {
	log.SetFlags(0)

	cobra.EnableCommandSorting = false
	t := tool.New(&vtape.Options{})
	rootCmd.AddCommand(t.Commands...)

	if err := rootCmd.Execute(); err != nil {
		// Cobra has already printed the error message.
		os.Exit(1)
	}
}

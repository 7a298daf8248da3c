package cmd

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/dQRY/cmd/query"
	"github.com/ValentinKolb/dQRY/cmd/serve"
	"github.com/ValentinKolb/dQRY/cmd/util"
	"github.com/spf13/cobra"
)

const (
	Version = "0.3.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "dqry",
		Short: "paged remote queries over a cache-backed SQL engine",
		Long: fmt.Sprintf(`dQRY (v%s)

A node-local query front end written in Go. Clients execute SQL queries over
a pluggable RPC transport and read the results page by page, open queries are
kept on the server between round-trips and evicted when they are abandoned.`, Version),
		SilenceUsage: true,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of dQRY",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("dQRY v%s\n", Version)
		},
	}
)

func init() {
	// Add Commands
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(query.QueryCommands)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	key := "serializer"
	RootCmd.PersistentFlags().String(key, "binary", util.WrapString("serializer to use (json, gob, binary)"))
	key = "transport"
	RootCmd.PersistentFlags().String(key, "tcp", util.WrapString("transport to use (http, tcp, unix)"))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

package query

import (
	"github.com/ValentinKolb/dQRY/cmd/util"
	"github.com/ValentinKolb/dQRY/rpc/client"
	"github.com/spf13/cobra"
)

var (
	rpcClient client.IQueryClient

	// QueryCommands represents the query command group
	QueryCommands = &cobra.Command{
		Use:                "query",
		Short:              "Run queries against a dQRY server",
		PersistentPreRunE:  setupQueryClient,
		PersistentPostRunE: closeQueryClient,
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitConfig)

	// Add common RPC flags to the query command
	util.SetupRPCClientFlags(QueryCommands)

	QueryCommands.PersistentFlags().Int("page-size", 0, util.WrapString("Number of items per page (0 = default page size of the server)"))

	// Add subcommands
	QueryCommands.AddCommand(execCmd)
	QueryCommands.AddCommand(fetchCmd)
	QueryCommands.AddCommand(closeCmd)
	QueryCommands.AddCommand(selectCmd)
	QueryCommands.AddCommand(perfTestCmd)
}

// setupQueryClient initializes the RPC query client
func setupQueryClient(cmd *cobra.Command, _ []string) error {
	// Bind command flags to viper
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	// Get client configuration components
	config := util.GetClientConfig()

	// Get serializer and transport
	s, err := util.GetSerializer()
	if err != nil {
		return err
	}

	t, err := util.GetTransport()
	if err != nil {
		return err
	}

	// Create the query client
	rpcClient, err = client.NewRPCQueryClient(
		*config,
		t,
		s,
	)

	return err
}

func closeQueryClient(_ *cobra.Command, _ []string) error {
	if rpcClient == nil {
		return nil
	}
	return rpcClient.Close()
}

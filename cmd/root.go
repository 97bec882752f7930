package cmd

import (
	"fmt"
	"github.com/ValentinKolb/dbwire/cmd/api"
	"github.com/ValentinKolb/dbwire/cmd/doc"
	"github.com/ValentinKolb/dbwire/cmd/perf"
	"github.com/ValentinKolb/dbwire/cmd/util"
	"github.com/ValentinKolb/dbwire/rpc/common"
	"github.com/spf13/cobra"
	"os"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "dbwire",
		Short: "client for document database servers",
		Long: fmt.Sprintf(`dbwire (v%s)

A client for clustered document database servers speaking HTTP (JSON or
VelocyPack bodies) or VelocyStream. Flags can also be set as environment
variables DBWIRE_<FLAG> (e.g. DBWIRE_ENDPOINTS=db1:8529,db2:8529) or in
.env and .env.local files.`, common.Version),
		SilenceUsage: true,
	}
	aboutCmd = &cobra.Command{
		Use:   "about",
		Short: "Print the version number of dbwire",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "dbwire v%s\n", common.Version)
		},
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitClientConfig)

	// Add Commands
	RootCmd.AddCommand(api.RequestCmd)
	RootCmd.AddCommand(api.VersionCmd)
	RootCmd.AddCommand(doc.DocumentCommands)
	RootCmd.AddCommand(perf.PerfCmd)
	RootCmd.AddCommand(aboutCmd)

	// Add Flags
	util.SetupConnectionFlags(RootCmd)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

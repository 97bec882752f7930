package doc

import (
	"github.com/ValentinKolb/dbwire/cmd/util"
	"github.com/spf13/cobra"
)

var (
	session *util.Session

	// DocumentCommands represents the document command group
	DocumentCommands = &cobra.Command{
		Use:                "doc",
		Short:              "Read documents",
		PersistentPreRunE:  setupDocumentClient,
		PersistentPostRunE: closeDocumentClient,
	}
)

func init() {
	key := "catch"
	DocumentCommands.PersistentFlags().Bool(key, true, util.WrapString("Report a missing document (404, 304, 412) as not found instead of an error"))
	key = "if-none-match"
	DocumentCommands.PersistentFlags().String(key, "", util.WrapString("Only return the document if its revision differs"))
	key = "if-match"
	DocumentCommands.PersistentFlags().String(key, "", util.WrapString("Only return the document if its revision matches"))
	key = "allow-dirty-read"
	DocumentCommands.PersistentFlags().Bool(key, false, util.WrapString("Allow reading from followers"))
	key = "trx"
	DocumentCommands.PersistentFlags().String(key, "", util.WrapString("Id of the stream transaction to read in"))

	// Add subcommands
	DocumentCommands.AddCommand(getCmd)
	DocumentCommands.AddCommand(existsCmd)
	DocumentCommands.AddCommand(getManyCmd)
}

// setupDocumentClient creates the session used by the document commands
func setupDocumentClient(cmd *cobra.Command, _ []string) (err error) {
	session, err = util.Setup(cmd)
	return err
}

func closeDocumentClient(cmd *cobra.Command, _ []string) error {
	return session.Close(cmd.OutOrStdout())
}

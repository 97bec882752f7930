package doc

import (
	"context"
	"encoding/json"
	"fmt"
	"github.com/ValentinKolb/dbwire/rpc/client"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	getCmd = &cobra.Command{
		Use:   "get [collection] [key]",
		Short: "Prints a document",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var doc map[string]any
			found, err := session.Client.GetDocument(context.Background(), args[0], args[1], &doc, documentOptions())
			if err != nil {
				return err
			}
			if !found {
				fmt.Fprintln(cmd.OutOrStdout(), "not found")
				return nil
			}
			return printJSON(cmd, doc)
		},
	}
	existsCmd = &cobra.Command{
		Use:   "exists [collection] [key]",
		Short: "Checks whether a document exists",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			exists, err := session.Client.DocumentExists(context.Background(), args[0], args[1], documentOptions())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), exists)
			return nil
		},
	}
	getManyCmd = &cobra.Command{
		Use:   "get-many [collection] [key...]",
		Short: "Prints multiple documents, errors are reported as they are",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var docs []map[string]any
			if err := session.Client.GetDocuments(context.Background(), args[0], args[1:], &docs, documentOptions()); err != nil {
				return err
			}
			return printJSON(cmd, docs)
		},
	}
)

// documentOptions reads the options of the document commands
func documentOptions() client.DocumentOptions {
	return client.DocumentOptions{
		CatchException: viper.GetBool("catch"),
		IfNoneMatch:    viper.GetString("if-none-match"),
		IfMatch:        viper.GetString("if-match"),
		AllowDirtyRead: viper.GetBool("allow-dirty-read"),
		TransactionID:  viper.GetString("trx"),
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}

package api

import (
	"context"
	"fmt"
	"github.com/ValentinKolb/dbwire/cmd/util"
	"github.com/ValentinKolb/dbwire/rpc/common"
	"github.com/ValentinKolb/dbwire/rpc/serializer"
	"github.com/spf13/cobra"
	"sort"
	"strings"
)

var (
	session *util.Session

	// RequestCmd executes an arbitrary request
	RequestCmd = &cobra.Command{
		Use:   "request [method] [path]",
		Short: "Execute a request against the server",
		Long: `Execute a request against the server and print the response.
The path is relative to the selected database, e.g. /_api/collection.`,
		Args:              cobra.ExactArgs(2),
		PersistentPreRunE: setupSession,
		PostRunE:          closeSession,
		RunE:              runRequest,
	}

	// VersionCmd prints the server version
	VersionCmd = &cobra.Command{
		Use:               "version",
		Short:             "Print the version of the server",
		Args:              cobra.NoArgs,
		PersistentPreRunE: setupSession,
		PostRunE:          closeSession,
		RunE:              runVersion,
	}
)

func init() {
	RequestCmd.Flags().String("body", "", util.WrapString("JSON body of the request"))
	RequestCmd.Flags().StringSlice("query", nil, util.WrapString("Query parameter as key=value, can be repeated"))
	RequestCmd.Flags().StringSlice("header", nil, util.WrapString("Header as key=value, can be repeated"))
	RequestCmd.Flags().BoolP("include", "i", false, util.WrapString("Print the status code and the response headers"))

	VersionCmd.Flags().Bool("details", false, util.WrapString("Include the server details"))
}

func setupSession(cmd *cobra.Command, _ []string) (err error) {
	session, err = util.Setup(cmd)
	return err
}

func closeSession(cmd *cobra.Command, _ []string) error {
	return session.Close(cmd.OutOrStdout())
}

func runRequest(cmd *cobra.Command, args []string) error {
	method, err := common.ParseRequestType(args[0])
	if err != nil {
		return err
	}

	req := common.NewRequest(session.Client.Database(), method, args[1])
	if body, _ := cmd.Flags().GetString("body"); body != "" {
		req.SetJSONBody(body)
	}
	queries, _ := cmd.Flags().GetStringSlice("query")
	for _, q := range queries {
		key, value, ok := strings.Cut(q, "=")
		if !ok {
			return fmt.Errorf("invalid query parameter %q, expected key=value", q)
		}
		req.PutQueryParam(key, value)
	}
	headers, _ := cmd.Flags().GetStringSlice("header")
	for _, h := range headers {
		key, value, ok := strings.Cut(h, "=")
		if !ok {
			return fmt.Errorf("invalid header %q, expected key=value", h)
		}
		req.PutHeaderParam(key, value)
	}

	resp, execErr := session.Client.Execute(context.Background(), req)
	if resp != nil {
		if include, _ := cmd.Flags().GetBool("include"); include {
			printHead(cmd, resp)
		}
		text, err := resp.Body.Text(serializer.DefaultCodec())
		if err != nil {
			return fmt.Errorf("failed to convert the response body: %w", err)
		}
		if text != "" {
			fmt.Fprintln(cmd.OutOrStdout(), text)
		}
	}
	return execErr
}

func runVersion(cmd *cobra.Command, _ []string) error {
	details, _ := cmd.Flags().GetBool("details")
	info, err := session.Client.Version(context.Background(), details)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%s)\n", info.Server, info.Version, info.License)
	keys := make([]string, 0, len(info.Details))
	for k := range info.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(cmd.OutOrStdout(), "  %-28s %s\n", k, info.Details[k])
	}
	return nil
}

// printHead prints the status code and the response headers
func printHead(cmd *cobra.Command, resp *common.Response) {
	fmt.Fprintf(cmd.OutOrStdout(), "%d\n", resp.StatusCode)
	keys := make([]string, 0, len(resp.Meta))
	for k := range resp.Meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", k, resp.Meta[k])
	}
	fmt.Fprintln(cmd.OutOrStdout())
}

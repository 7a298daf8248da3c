package query

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/ValentinKolb/dQRY/cmd/util"
	"github.com/ValentinKolb/dQRY/rpc/client"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	execCmd = &cobra.Command{
		Use:   "exec [cache] [sql] [args...]",
		Short: "Executes a query and prints the first page",
		Long: `Executes a query and prints the first page together with the query id.
Without --type the sql is a complete SELECT statement, with --type it is the WHERE
clause for the given type (e.g. exec people "age > ?" 30 --type Person).
Arguments are parsed as JSON values, everything else is used as string.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cache, sql := args[0], args[1]
			queryArgs := util.ParseArgs(args[2:])
			pageSize := viper.GetInt("page-size")

			var page *client.Page
			var err error
			if viper.GetBool("fields") {
				page, err = rpcClient.ExecuteFields(cache, sql, queryArgs, pageSize)
			} else {
				page, err = rpcClient.Execute(cache, viper.GetString("type"), sql, queryArgs, pageSize)
			}
			if err != nil {
				return err
			}
			printPage(page)
			return nil
		},
	}
	fetchCmd = &cobra.Command{
		Use:   "fetch [queryId]",
		Short: "Fetches the next page of an open query",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			queryID, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("queryId must be a number: %w", err)
			}
			page, err := rpcClient.Fetch(queryID, viper.GetInt("page-size"))
			if err != nil {
				return err
			}
			printPage(page)
			return nil
		},
	}
	closeCmd = &cobra.Command{
		Use:   "close [queryId]",
		Short: "Closes an open query",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			queryID, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("queryId must be a number: %w", err)
			}
			if ok, err := rpcClient.CloseQuery(queryID); err != nil {
				return err
			} else {
				fmt.Printf("queryId=%d, closed=%t\n", queryID, ok)
			}
			return nil
		},
	}
	selectCmd = &cobra.Command{
		Use:   "select [cache] [sql] [args...]",
		Short: "Runs a SELECT statement and prints all rows",
		Long:  `Runs a SELECT statement, fetches all pages and prints one row per line after a header with the field names.`,
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pageSize := viper.GetInt("page-size")
			page, err := rpcClient.ExecuteFields(args[0], args[1], util.ParseArgs(args[2:]), pageSize)
			if err != nil {
				return err
			}

			names := make([]string, len(page.Fields))
			for i, f := range page.Fields {
				names[i] = f.FieldName
			}
			fmt.Println(strings.Join(names, "\t"))

			rows := 0
			err = rpcClient.ForEach(page, pageSize, func(item json.RawMessage) error {
				var row []any
				if err := json.Unmarshal(item, &row); err != nil {
					return err
				}
				values := make([]string, len(row))
				for i, v := range row {
					values[i] = fmt.Sprint(v)
				}
				fmt.Println(strings.Join(values, "\t"))
				rows++
				return nil
			})
			if err != nil {
				return err
			}
			fmt.Printf("(%d rows)\n", rows)
			return nil
		},
	}
)

func init() {
	execCmd.Flags().String("type", "", util.WrapString("Type (table) name for a typed query, the sql is then the WHERE clause"))
	execCmd.Flags().Bool("fields", false, util.WrapString("Run the sql as a complete SELECT returning rows (ignores --type)"))
}

// printPage prints a page in a line based format
func printPage(page *client.Page) {
	fmt.Printf("queryId=%d, items=%d, last=%t\n", page.QueryID, len(page.Items), page.Last)
	for _, f := range page.Fields {
		fmt.Printf("field: %s.%s.%s (%s)\n", f.SchemaName, f.TypeName, f.FieldName, f.FieldTypeName)
	}
	for _, item := range page.Items {
		fmt.Println(string(item))
	}
}

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentstation/labelview/internal/store"
)

// dataCmd groups database housekeeping commands.
var dataCmd = &cobra.Command{
	Use:   "data",
	Short: "Manage the local record database",
}

var dataWhereCmd = &cobra.Command{
	Use:   "where",
	Short: "Print the database path",
	RunE: func(_ *cobra.Command, _ []string) error {
		path := flagDBPath
		if path == "" {
			var err error
			path, err = store.DefaultPath()
			if err != nil {
				return err
			}
		}
		fmt.Println(path)
		return nil
	},
}

var dataInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the database and apply the schema",
	RunE: func(_ *cobra.Command, _ []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		if st == nil {
			return nil
		}
		return st.Close()
	},
}

func init() {
	dataCmd.AddCommand(dataWhereCmd)
	dataCmd.AddCommand(dataInitCmd)
	rootCmd.AddCommand(dataCmd)
}

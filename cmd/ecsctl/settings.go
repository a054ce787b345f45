package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newSettingsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "系统配置",
	}
	cmd.AddCommand(newSettingsListCmd(a), newSettingsSetCmd(a))
	return cmd
}

func newSettingsListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "列出配置项",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			settings := a.settingService(store)
			defer settings.Close()

			items, err := settings.List(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "KEY\tVALUE\tDESCRIPTION")
			for _, s := range items {
				fmt.Fprintf(w, "%s\t%s\t%s\n", s.Key, s.Value, s.Description)
			}
			return w.Flush()
		},
	}
}

func newSettingsSetCmd(a *app) *cobra.Command {
	var description string

	cmd := &cobra.Command{
		Use:     "set <key> <value>",
		Short:   "写入配置项",
		Example: "  ecsctl settings set org_name '市政府办公室'\n  ecsctl settings set items_per_page 50",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			settings := a.settingService(store)
			defer settings.Close()

			setting, err := settings.Set(cmd.Context(), 0, args[0], args[1], description)
			if err != nil {
				return err
			}
			a.printf("%s = %s\n", setting.Key, setting.Value)
			return nil
		},
	}
	cmd.Flags().StringVar(&description, "description", "", "配置说明")
	return cmd
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/haowjy/meridian-notes-go/settings"
)

// --- notes settings ---

func settingsCmd() *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change the client settings",
	}
	cmd.PersistentFlags().StringVar(&path, "settings", "", "Settings file (default ~/.config/meridian-notes/settings.yaml)")

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective settings (file and environment)",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := settings.NewFileStore(path)
			if err != nil {
				return err
			}
			s, err := store.Load()
			if err != nil {
				return err
			}
			if s.APIKey != "" {
				s.APIKey = "********"
			}

			data, err := yaml.Marshal(s)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "# %s\n%s", store.Path, data)
			return nil
		},
	}

	setCmd := &cobra.Command{
		Use:       "set <key> <value>",
		Short:     "Persist one setting",
		Args:      cobra.ExactArgs(2),
		ValidArgs: settings.Keys(),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := settings.NewFileStore(path)
			if err != nil {
				return err
			}
			s, err := store.LoadPersisted()
			if err != nil {
				return err
			}
			if err := s.Set(args[0], args[1]); err != nil {
				return err
			}
			if err := store.Save(s); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s saved to %s\n", args[0], store.Path)
			return nil
		},
	}

	cmd.AddCommand(showCmd, setCmd)
	return cmd
}

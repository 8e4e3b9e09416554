package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/pyhostd/pyhostd/internal/config"
	"github.com/pyhostd/pyhostd/internal/store"
)

func newScriptCommand(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "script",
		Short: "Inspect and manage the signed script store",
	}
	cmd.AddCommand(newScriptListCommand(configPath))
	cmd.AddCommand(newScriptImportCommand(configPath))
	cmd.AddCommand(newScriptSaveCommand(configPath))
	cmd.AddCommand(newScriptLoadCommand(configPath))
	cmd.AddCommand(newScriptRemoveCommand(configPath))
	return cmd
}

func openStore(configPath string) (*store.Store, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	signingKey := []byte(cfg.Sign.Key)
	if len(signingKey) == 0 {
		host, _ := os.Hostname()
		signingKey = store.DeriveKey(cfg.Store.Dir, host)
	}
	return store.Open(cfg.Store.Dir, cfg.Store.IndexDSN, signingKey)
}

func newScriptListCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List saved scripts",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(*configPath)
			if err != nil {
				return err
			}
			defer st.Close()

			entries, err := st.List()
			if err != nil {
				return err
			}
			for _, e := range entries {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\tv%d\n", e.Name, e.FolderPath, e.Metadata.Version)
			}
			return nil
		},
	}
}

func newScriptImportCommand(configPath *string) *cobra.Command {
	var folder, author, description string
	cmd := &cobra.Command{
		Use:   "import NAME FILE",
		Short: "Import a local .py file into the signed script store",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, path := args[0], args[1]
			code, err := os.ReadFile(path)
			if err != nil {
				return err
			}

			st, err := openStore(*configPath)
			if err != nil {
				return err
			}
			defer st.Close()

			_, err = st.Save(name, folder, string(code), store.Metadata{Author: author, Description: description})
			return err
		},
	}
	cmd.Flags().StringVar(&folder, "folder", "", "destination folder path")
	cmd.Flags().StringVar(&author, "author", "", "script author")
	cmd.Flags().StringVar(&description, "description", "", "script description")
	return cmd
}

// newScriptSaveCommand is import's sibling: it reads code from stdin instead
// of a file, matching the HTTP surface's POST /scripts body shape.
func newScriptSaveCommand(configPath *string) *cobra.Command {
	var folder, author, description string
	cmd := &cobra.Command{
		Use:   "save NAME",
		Short: "Save a script read from stdin into the signed script store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			code, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return err
			}

			st, err := openStore(*configPath)
			if err != nil {
				return err
			}
			defer st.Close()

			_, err = st.Save(name, folder, string(code), store.Metadata{Author: author, Description: description})
			return err
		},
	}
	cmd.Flags().StringVar(&folder, "folder", "", "destination folder path")
	cmd.Flags().StringVar(&author, "author", "", "script author")
	cmd.Flags().StringVar(&description, "description", "", "script description")
	return cmd
}

func newScriptLoadCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "load NAME",
		Short: "Print a saved script's source to stdout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(*configPath)
			if err != nil {
				return err
			}
			defer st.Close()

			rec, _, err := st.Load(args[0])
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), rec.Code)
			return nil
		},
	}
}

func newScriptRemoveCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:     "rm NAME",
		Short:   "Delete a saved script",
		Aliases: []string{"delete", "remove"},
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(*configPath)
			if err != nil {
				return err
			}
			defer st.Close()
			return st.Delete(args[0])
		},
	}
}

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/histocoin/artifact-miner/internal/miner"
	"github.com/histocoin/artifact-miner/internal/registry"
)

func registrySource(rawURL, name string) miner.Source {
	return miner.Source{BaseURL: rawURL, Name: name}
}

// newSourcesCmd groups registry maintenance commands.
func newSourcesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sources",
		Short: "Inspects and edits the local source registry",
	}
	cmd.AddCommand(newSourcesAddCmd())
	cmd.AddCommand(newSourcesListCmd())
	return cmd
}

func openRegistry() (*registry.Registry, *zap.Logger, error) {
	cfg, logger, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	store, err := registry.NewFileStore(cfg.Registry.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("open registry: %w", err)
	}
	return registry.New(store), logger, nil
}

func newSourcesAddCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "add <url>",
		Short: "Registers a source URL if it is not already known",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, logger, err := openRegistry()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			added, entry, err := reg.AddIfAbsent(registrySource(args[0], name))
			if err != nil {
				return fmt.Errorf("add source: %w", err)
			}
			if !added {
				fmt.Printf("already registered: %s (%s)\n", entry.BaseURL, entry.ID)
				return nil
			}
			fmt.Printf("registered: %s (%s)\n", entry.BaseURL, entry.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name (defaults to the host)")
	return cmd
}

func newSourcesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Prints all registered sources",
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg, logger, err := openRegistry()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			entries, err := reg.List()
			if err != nil {
				return fmt.Errorf("list sources: %w", err)
			}
			if len(entries) == 0 {
				fmt.Println("registry is empty")
				return nil
			}
			for _, e := range entries {
				fmt.Printf("%s\t%s\t%s\t%s\n", e.ID, e.Kind, e.Name, e.BaseURL)
			}
			return nil
		},
	}
}

package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aristath/pbvs/internal/config"
)

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage pbvs configuration files",
	}
	cmd.AddCommand(configInitCmd())
	return cmd
}

func configInitCmd() *cobra.Command {
	var global, force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration to .pbvs/config.json",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.ProjectPath
			if global {
				p, err := config.GlobalPath()
				if err != nil {
					return err
				}
				path = p
			}
			return initConfig(path, force)
		},
	}
	cmd.Flags().BoolVar(&global, "global", false, "Write ~/.pbvs/config.json instead")
	cmd.Flags().BoolVar(&force, "force", false, "Replace an existing file")

	return cmd
}

func initConfig(path string, force bool) error {
	err := config.Save(config.DefaultConfig(), path, force)
	if errors.Is(err, config.ErrExists) {
		return fmt.Errorf("%s already exists, use --force to replace it", path)
	}
	if err != nil {
		return err
	}
	fmt.Printf("%s %s\n", Green("wrote"), path)
	return nil
}

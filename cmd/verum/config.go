package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"verum/internal/config"
)

func cmdConfig(c *cli, args []string) error {
	fs := c.newFlagSet("config", "config <init [path] [-force] | show | validate <path>>")
	force := fs.Bool("force", false, "overwrite an existing file")
	positional, err := parse(fs, args)
	if err != nil {
		return err
	}
	if len(positional) < 1 {
		fs.Usage()
		return errUsage
	}

	switch positional[0] {
	case "init":
		path := config.ConfigPath()
		if len(positional) > 1 {
			path = positional[1]
		}
		if _, err := os.Stat(path); err == nil && !*force {
			return fmt.Errorf("%s already exists (use -force to overwrite)", path)
		}
		if err := config.Save(config.DefaultConfig(), path); err != nil {
			return err
		}
		fmt.Fprintf(c.stdout, "Wrote default configuration to %s\n", path)
	case "show":
		cfg, err := c.loadConfig()
		if err != nil {
			return err
		}
		enc := yaml.NewEncoder(c.stdout)
		enc.SetIndent(2)
		if err := enc.Encode(cfg); err != nil {
			return err
		}
		return enc.Close()
	case "validate":
		if len(positional) != 2 {
			fs.Usage()
			return errUsage
		}
		if _, err := os.Stat(positional[1]); err != nil {
			return err
		}
		if _, err := config.Load(positional[1]); err != nil {
			return err
		}
		fmt.Fprintf(c.stdout, "%s is valid\n", positional[1])
	default:
		fs.Usage()
		return errUsage
	}
	return nil
}

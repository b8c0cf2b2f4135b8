// Command pmk organizes a writing project: a tree of plain-text nodes
// described by one outline file.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/eykd/prosemark/internal/config"
	"github.com/eykd/prosemark/internal/project"
)

func main() {
	cmd := &cli.Command{
		Name:  "pmk",
		Usage: "Hierarchical writing-project organizer over plain text files",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "path",
				Aliases: []string{"C"},
				Usage:   "Project directory (default: discovered upward from the working directory)",
				Sources: cli.EnvVars("PMK_PATH"),
			},
		},
		Commands: []*cli.Command{
			initCommand(),
			addCommand(),
			renameCommand(),
			moveCommand(),
			removeCommand(),
			structureCommand(),
			showCommand(),
			setCommand(),
			editCommand(),
			wcCommand(),
			searchCommand(),
			auditCommand(),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("pmk failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// env holds everything one command invocation needs.
type env struct {
	cfg    *config.Config
	proj   *project.Project
	logger *slog.Logger
}

// openEnv locates the project root, loads its configuration, and opens the
// project.
func openEnv(cmd *cli.Command) (*env, error) {
	root := cmd.String("path")
	if root == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		root, err = config.Discover(cwd, project.OutlineFile, config.FileName)
		if err != nil {
			return nil, err
		}
	}

	cfg, err := config.Load(root)
	if err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.Level(),
	}))
	slog.SetDefault(logger)

	p, err := project.Open(root, project.WithExtension(cfg.Extension))
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, proj: p, logger: logger}, nil
}

func initCommand() *cli.Command {
	return &cli.Command{
		Name:      "init",
		Usage:     "Create a new project in a directory",
		ArgsUsage: "[DIR]",
		Action: func(_ context.Context, cmd *cli.Command) error {
			dir := cmd.Args().First()
			if dir == "" {
				var err error
				dir, err = os.Getwd()
				if err != nil {
					return err
				}
			}
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return err
			}
			if err := project.Init(dir); err != nil {
				return err
			}
			if _, err := os.Stat(filepath.Join(dir, config.FileName)); os.IsNotExist(err) {
				if err := config.WriteDefault(dir); err != nil {
					return err
				}
			}
			fmt.Printf("initialized project in %s\n", dir)
			return nil
		},
	}
}

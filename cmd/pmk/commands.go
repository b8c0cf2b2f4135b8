package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/eykd/prosemark/internal/id"
	"github.com/eykd/prosemark/internal/index"
	"github.com/eykd/prosemark/internal/node"
	"github.com/eykd/prosemark/internal/project"
	"github.com/eykd/prosemark/internal/tree"
	"github.com/eykd/prosemark/internal/wordcount"
)

// loadTree opens the project and loads its tree, failing on any fatal
// problem and logging warnings.
func loadTree(cmd *cli.Command) (*env, *tree.Tree, error) {
	e, err := openEnv(cmd)
	if err != nil {
		return nil, nil, err
	}
	t, report, err := e.proj.Load()
	if err != nil {
		return nil, nil, err
	}
	for _, p := range report.Problems {
		if !p.Kind.Fatal() {
			e.logger.Warn("load problem", slog.String("detail", p.String()))
		}
	}
	if t == nil {
		return nil, nil, fmt.Errorf("%w; run `pmk audit` for the full report", report.Err())
	}
	return e, t, nil
}

func argID(cmd *cli.Command, n int) (id.NodeID, error) {
	return id.Parse(cmd.Args().Get(n))
}

func parentFlag(cmd *cli.Command) (id.NodeID, error) {
	raw := cmd.String("parent")
	if raw == "" {
		return id.Zero, nil
	}
	return id.Parse(raw)
}

func positionFlag() *cli.IntFlag {
	return &cli.IntFlag{
		Name:    "position",
		Aliases: []string{"p"},
		Usage:   "Position among siblings (default: append)",
		Value:   tree.AtEnd,
	}
}

func addCommand() *cli.Command {
	return &cli.Command{
		Name:      "add",
		Usage:     "Add a node",
		ArgsUsage: "TITLE",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "parent", Usage: "Parent node id (default: root level)"},
			positionFlag(),
		},
		Action: func(_ context.Context, cmd *cli.Command) error {
			title := cmd.Args().First()
			if title == "" {
				return fmt.Errorf("add: a title is required")
			}
			parent, err := parentFlag(cmd)
			if err != nil {
				return err
			}
			e, t, err := loadTree(cmd)
			if err != nil {
				return err
			}
			n, err := t.AddChild(parent, title, int(cmd.Int("position")))
			if err != nil {
				return err
			}
			if _, err := e.proj.Persist(t, project.PersistOptions{}); err != nil {
				return err
			}
			fmt.Println(n.ID)
			return nil
		},
	}
}

func renameCommand() *cli.Command {
	return &cli.Command{
		Name:      "rename",
		Usage:     "Change a node's title",
		ArgsUsage: "ID TITLE",
		Action: func(_ context.Context, cmd *cli.Command) error {
			nid, err := argID(cmd, 0)
			if err != nil {
				return err
			}
			title := cmd.Args().Get(1)
			if title == "" {
				return fmt.Errorf("rename: a title is required")
			}
			e, t, err := loadTree(cmd)
			if err != nil {
				return err
			}
			if err := t.Rename(nid, title); err != nil {
				return err
			}
			_, err = e.proj.Persist(t, project.PersistOptions{})
			return err
		},
	}
}

func moveCommand() *cli.Command {
	return &cli.Command{
		Name:      "move",
		Usage:     "Move a node to a new parent or position",
		ArgsUsage: "ID",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "parent", Usage: "New parent id (default: root level)"},
			positionFlag(),
		},
		Action: func(_ context.Context, cmd *cli.Command) error {
			nid, err := argID(cmd, 0)
			if err != nil {
				return err
			}
			parent, err := parentFlag(cmd)
			if err != nil {
				return err
			}
			e, t, err := loadTree(cmd)
			if err != nil {
				return err
			}
			if err := t.Move(nid, parent, int(cmd.Int("position"))); err != nil {
				return err
			}
			_, err = e.proj.Persist(t, project.PersistOptions{})
			return err
		},
	}
}

func removeCommand() *cli.Command {
	return &cli.Command{
		Name:      "remove",
		Usage:     "Detach a node from the outline",
		ArgsUsage: "ID",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "cascade", Usage: "Also detach the node's descendants"},
			&cli.BoolFlag{Name: "delete-files", Usage: "Delete the node files instead of leaving orphans"},
		},
		Action: func(_ context.Context, cmd *cli.Command) error {
			nid, err := argID(cmd, 0)
			if err != nil {
				return err
			}
			e, t, err := loadTree(cmd)
			if err != nil {
				return err
			}
			detached, err := t.Remove(nid, cmd.Bool("cascade"))
			if err != nil {
				return err
			}
			opts := project.PersistOptions{DeleteRemovedFiles: cmd.Bool("delete-files")}
			if _, err := e.proj.Persist(t, opts); err != nil {
				return err
			}
			fmt.Printf("removed %d node(s)\n", len(detached))
			return nil
		},
	}
}

type structureNode struct {
	ID       string           `json:"id"`
	Title    string           `json:"title"`
	Children []*structureNode `json:"children,omitempty"`
}

func structureCommand() *cli.Command {
	return &cli.Command{
		Name:  "structure",
		Usage: "Print the project tree",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "json", Usage: "Emit JSON instead of text"},
		},
		Action: func(_ context.Context, cmd *cli.Command) error {
			_, t, err := loadTree(cmd)
			if err != nil {
				return err
			}
			if cmd.Bool("json") {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(structureForest(t, t.Roots()))
			}
			var render func(ids []id.NodeID, depth int) error
			render = func(ids []id.NodeID, depth int) error {
				for _, nid := range ids {
					n, err := t.Find(nid)
					if err != nil {
						return err
					}
					fmt.Printf("%s- %s  (%s)\n", strings.Repeat("  ", depth), n.Title, n.ID)
					if err := render(n.Children, depth+1); err != nil {
						return err
					}
				}
				return nil
			}
			return render(t.Roots(), 0)
		},
	}
}

func structureForest(t *tree.Tree, ids []id.NodeID) []*structureNode {
	out := make([]*structureNode, 0, len(ids))
	for _, nid := range ids {
		n, err := t.Find(nid)
		if err != nil {
			continue
		}
		out = append(out, &structureNode{
			ID:       n.ID.String(),
			Title:    n.Title,
			Children: structureForest(t, n.Children),
		})
	}
	return out
}

func showCommand() *cli.Command {
	return &cli.Command{
		Name:      "show",
		Usage:     "Print one node",
		ArgsUsage: "ID",
		Action: func(_ context.Context, cmd *cli.Command) error {
			nid, err := argID(cmd, 0)
			if err != nil {
				return err
			}
			_, t, err := loadTree(cmd)
			if err != nil {
				return err
			}
			n, err := t.Find(nid)
			if err != nil {
				return err
			}
			fmt.Printf("id:      %s\n", n.ID)
			fmt.Printf("title:   %s\n", n.Title)
			fmt.Printf("file:    %s\n", n.Path)
			fmt.Printf("created: %s\n", n.Created.Format(time.RFC3339))
			fmt.Printf("updated: %s\n", n.Updated.Format(time.RFC3339))
			keys := make([]string, 0, len(n.Meta))
			for k := range n.Meta {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Printf("meta.%s: %s\n", k, n.Meta[k].Display())
			}
			if n.Notecard != "" {
				fmt.Printf("\n[notecard]\n%s", n.Notecard)
			}
			if n.Content != "" {
				fmt.Printf("\n%s", n.Content)
			}
			return nil
		},
	}
}

func setCommand() *cli.Command {
	return &cli.Command{
		Name:      "set",
		Usage:     "Set or delete a metadata key on a node",
		ArgsUsage: "ID KEY [VALUE]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "type",
				Usage: "Value type: string, number, bool, or timestamp",
				Value: "string",
			},
			&cli.BoolFlag{Name: "delete", Usage: "Delete the key instead of setting it"},
		},
		Action: func(_ context.Context, cmd *cli.Command) error {
			nid, err := argID(cmd, 0)
			if err != nil {
				return err
			}
			key := cmd.Args().Get(1)
			if key == "" {
				return fmt.Errorf("set: a key is required")
			}
			e, t, err := loadTree(cmd)
			if err != nil {
				return err
			}
			if cmd.Bool("delete") {
				if err := t.DeleteMeta(nid, key); err != nil {
					return err
				}
			} else {
				v, err := parseValue(cmd.String("type"), cmd.Args().Get(2))
				if err != nil {
					return err
				}
				if err := t.SetMeta(nid, key, v); err != nil {
					return err
				}
			}
			_, err = e.proj.Persist(t, project.PersistOptions{})
			return err
		},
	}
}

func parseValue(kind, raw string) (node.Value, error) {
	switch kind {
	case "string":
		return node.String(raw), nil
	case "number":
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return node.Value{}, fmt.Errorf("set: %q is not a number", raw)
		}
		return node.Number(f), nil
	case "bool":
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return node.Value{}, fmt.Errorf("set: %q is not a bool", raw)
		}
		return node.Bool(b), nil
	case "timestamp":
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return node.Value{}, fmt.Errorf("set: %q is not an RFC 3339 timestamp", raw)
		}
		return node.Time(ts), nil
	default:
		return node.Value{}, fmt.Errorf("set: unknown type %q", kind)
	}
}

func editCommand() *cli.Command {
	return &cli.Command{
		Name:      "edit",
		Usage:     "Open a node's file in $EDITOR",
		ArgsUsage: "ID",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			nid, err := argID(cmd, 0)
			if err != nil {
				return err
			}
			e, t, err := loadTree(cmd)
			if err != nil {
				return err
			}
			n, err := t.Find(nid)
			if err != nil {
				return err
			}
			editor := e.cfg.Editor
			if editor == "" {
				editor = os.Getenv("EDITOR")
			}
			if editor == "" {
				return fmt.Errorf("edit: no editor configured and $EDITOR is unset")
			}
			abs, err := e.proj.Dir().Abs(n.Path)
			if err != nil {
				return err
			}
			run := exec.CommandContext(ctx, editor, abs)
			run.Stdin = os.Stdin
			run.Stdout = os.Stdout
			run.Stderr = os.Stderr
			if err := run.Run(); err != nil {
				return fmt.Errorf("edit: %s: %w", editor, err)
			}
			return nil
		},
	}
}

func wcCommand() *cli.Command {
	return &cli.Command{
		Name:      "wc",
		Usage:     "Count words in the project or one subtree",
		ArgsUsage: "[ID]",
		Action: func(_ context.Context, cmd *cli.Command) error {
			_, t, err := loadTree(cmd)
			if err != nil {
				return err
			}
			nodes := t.All()
			if raw := cmd.Args().First(); raw != "" {
				nid, err := id.Parse(raw)
				if err != nil {
					return err
				}
				nodes, err = t.Subtree(nid)
				if err != nil {
					return err
				}
			}
			texts := make([]string, len(nodes))
			for i, n := range nodes {
				texts[i] = n.Content
			}
			fmt.Println(wordcount.Total(texts))
			return nil
		},
	}
}

func searchCommand() *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Full-text search over node titles and bodies",
		ArgsUsage: "QUERY",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Usage: "Maximum hits (default: from config)"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			query := cmd.Args().First()
			if query == "" {
				return fmt.Errorf("search: a query is required")
			}
			e, err := openEnv(cmd)
			if err != nil {
				return err
			}
			db, err := index.Open(filepath.Join(e.proj.Root(), e.cfg.Search.Index))
			if err != nil {
				return err
			}
			defer db.Close()

			if err := index.Sync(ctx, db, e.proj.Dir(), e.cfg.Extension, e.logger); err != nil {
				return err
			}
			limit := int(cmd.Int("limit"))
			if limit <= 0 {
				limit = e.cfg.Search.Limit
			}
			hits, err := db.Search(query, limit)
			if err != nil {
				return err
			}
			for _, h := range hits {
				fmt.Printf("%s\t%s\t%s\n", h.ID, h.Title, h.Snippet)
			}
			return nil
		},
	}
}

func auditCommand() *cli.Command {
	return &cli.Command{
		Name:  "audit",
		Usage: "Check the project for problems",
		Action: func(_ context.Context, cmd *cli.Command) error {
			e, err := openEnv(cmd)
			if err != nil {
				return err
			}
			_, report, err := e.proj.Load()
			if err != nil {
				return err
			}
			for _, p := range report.Problems {
				fmt.Println(p)
			}
			if err := report.Err(); err != nil {
				return err
			}
			if report.Clean() {
				fmt.Println("ok")
			}
			return nil
		},
	}
}

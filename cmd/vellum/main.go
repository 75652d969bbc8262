// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
	"github.com/poiesic/vellum"
	"github.com/poiesic/vellum/config"
	"github.com/poiesic/vellum/core"
	"github.com/poiesic/vellum/documents"
	"github.com/poiesic/vellum/search"
	"github.com/poiesic/vellum/storage"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "vellum",
		Usage: "Versioned document store with a search index",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "db",
				Aliases: []string{"d"},
				Usage:   "Path to BadgerDB database directory",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a YAML configuration file",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.BoolFlag{
				Name:  "memory",
				Usage: "Keep the database in memory; nothing is persisted",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:      "create",
				Usage:     "Create a document",
				ArgsUsage: "[id]",
				Action:    createCommand,
				Flags: []cli.Flag{
					&cli.StringSliceFlag{
						Name:    "facet",
						Aliases: []string{"f"},
						Usage:   "Facet as key=value; values that are not JSON are stored as strings",
					},
				},
			},
			{
				Name:      "get",
				Usage:     "Print a document",
				ArgsUsage: "<id>",
				Action:    getCommand,
				Flags: []cli.Flag{
					&cli.TimestampFlag{
						Name:   "version",
						Usage:  "Version timestamp to read instead of the head",
						Layout: time.RFC3339Nano,
					},
				},
			},
			{
				Name:      "versions",
				Usage:     "List the version timestamps of a document",
				ArgsUsage: "<id>",
				Action:    versionsCommand,
			},
			{
				Name:      "update-facet",
				Usage:     "Set or remove a facet of a document",
				ArgsUsage: "<id> <key> [value]",
				Action:    updateFacetCommand,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "remove",
						Usage: "Remove the facet instead of setting it",
					},
				},
			},
			{
				Name:      "attach",
				Usage:     "Attach a file to a document as a content element",
				ArgsUsage: "<id> <file>",
				Action:    attachCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "role", Usage: "Role of the content element", Value: "primary"},
					&cli.StringFlag{Name: "media-type", Usage: "Media type of the content", Value: "application/octet-stream"},
					&cli.StringFlag{Name: "element", Usage: "Id of the element to replace"},
				},
			},
			{
				Name:      "content",
				Usage:     "Write the payload of a content element to stdout",
				ArgsUsage: "<id> <element>",
				Action:    contentCommand,
				Flags: []cli.Flag{
					&cli.TimestampFlag{
						Name:   "version",
						Usage:  "Read the payload recorded by this document version",
						Layout: time.RFC3339Nano,
					},
				},
			},
			{
				Name:      "delete",
				Usage:     "Delete a document",
				ArgsUsage: "<id>",
				Action:    deleteCommand,
			},
			{
				Name:   "ids",
				Usage:  "List every stored document id, deleted ones included",
				Action: idsCommand,
			},
			{
				Name:   "ls",
				Usage:  "List live documents",
				Action: lsCommand,
			},
			{
				Name:   "reindex",
				Usage:  "Rebuild the search index from the stored documents",
				Action: reindexCommand,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "status",
						Usage: "Show the last finished rebuild instead of rebuilding",
					},
				},
			},
			{
				Name:      "search",
				Usage:     "Search the index",
				ArgsUsage: "[words...]",
				Action:    searchCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "filter",
						Usage: `Filter as JSON, for example '{"contentLength": {"$gt": 0}}'`,
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of hits",
						Value: search.DefaultLimit,
					},
					&cli.BoolFlag{
						Name:  "include-deleted",
						Usage: "Include documents flagged deleted",
					},
				},
			},
			{
				Name:   "seed",
				Usage:  "Create sample documents",
				Action: seedCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "count",
						Usage: "Number of documents to create",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of documents created per transaction",
						Value: 50,
					},
				},
			},
			{
				Name:   "queue",
				Usage:  "Show the index maintenance queue",
				Action: queueCommand,
			},
		},
	}
}

func setupLogger(c *cli.Context) error {
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(c.App.ErrWriter, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
	return nil
}

// loadConfig merges the configuration file with the global flags.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if path := c.String("config"); path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return nil, err
		}
	}
	if c.IsSet("db") {
		cfg.Path = c.String("db")
	}
	if c.Bool("memory") {
		cfg.InMemory = true
	}
	if c.IsSet("log-level") {
		cfg.LogLevel = c.String("log-level")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// withDatabase opens the database, runs fn and waits for index maintenance
// caused by fn before closing.
func withDatabase(c *cli.Context, fn func(ctx context.Context, db *vellum.Database) error) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	ctx := c.Context
	db, err := vellum.NewDatabase(ctx, vellum.WithConfig(cfg), vellum.WithProgress(c.App.ErrWriter))
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := fn(ctx, db); err != nil {
		return err
	}
	return db.SyncIndex(ctx)
}

func printJSON(w io.Writer, v any) error {
	if err := json.MarshalWrite(w, v, jsontext.WithIndent("  "), json.Deterministic(true)); err != nil {
		return err
	}
	_, err := fmt.Fprintln(w)
	return err
}

// facetValue returns raw as JSON if it is valid JSON, else as a JSON string.
func facetValue(raw string) (jsontext.Value, error) {
	if v := jsontext.Value(raw); v.IsValid() {
		return v.Clone(), nil
	}
	return json.Marshal(raw)
}

func parseFacets(specs []string) (map[string]jsontext.Value, error) {
	facets := make(map[string]jsontext.Value, len(specs))
	for _, spec := range specs {
		key, raw, ok := strings.Cut(spec, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid facet %q: expected key=value", spec)
		}
		v, err := facetValue(raw)
		if err != nil {
			return nil, err
		}
		facets[key] = v
	}
	return facets, nil
}

func requireArgs(c *cli.Context, n int, usage string) error {
	if c.NArg() < n {
		return fmt.Errorf("usage: %s %s", c.Command.Name, usage)
	}
	return nil
}

func createCommand(c *cli.Context) error {
	facets, err := parseFacets(c.StringSlice("facet"))
	if err != nil {
		return err
	}
	return withDatabase(c, func(ctx context.Context, db *vellum.Database) error {
		var created *core.Document
		err := db.WithTransaction(ctx, func(ctx context.Context) error {
			var err error
			created, err = db.Documents().CreateDocument(ctx, &core.Document{
				DocumentID: c.Args().First(),
				Facets:     facets,
			})
			return err
		})
		if err != nil {
			return err
		}
		return printJSON(c.App.Writer, created)
	})
}

func getCommand(c *cli.Context) error {
	if err := requireArgs(c, 1, "<id>"); err != nil {
		return err
	}
	return withDatabase(c, func(ctx context.Context, db *vellum.Database) error {
		var (
			doc *core.Document
			err error
		)
		if ts := c.Timestamp("version"); ts != nil {
			doc, err = db.Documents().GetDocumentVersion(ctx, c.Args().First(), *ts)
		} else {
			doc, err = db.Documents().GetDocument(ctx, c.Args().First())
		}
		if err != nil {
			return err
		}
		return printJSON(c.App.Writer, doc)
	})
}

func versionsCommand(c *cli.Context) error {
	if err := requireArgs(c, 1, "<id>"); err != nil {
		return err
	}
	return withDatabase(c, func(ctx context.Context, db *vellum.Database) error {
		versions, err := db.Documents().GetVersions(ctx, c.Args().First())
		if err != nil {
			return err
		}
		for _, v := range versions {
			fmt.Fprintln(c.App.Writer, v.Format(time.RFC3339Nano))
		}
		return nil
	})
}

func updateFacetCommand(c *cli.Context) error {
	remove := c.Bool("remove")
	if remove {
		if err := requireArgs(c, 2, "<id> <key>"); err != nil {
			return err
		}
	} else if err := requireArgs(c, 3, "<id> <key> <value>"); err != nil {
		return err
	}
	id, key := c.Args().Get(0), c.Args().Get(1)

	return withDatabase(c, func(ctx context.Context, db *vellum.Database) error {
		var updated *core.Document
		err := db.WithTransaction(ctx, func(ctx context.Context) error {
			svc := db.Documents()
			if remove {
				if err := svc.RemoveFacet(ctx, id, key); err != nil {
					return err
				}
			} else {
				value, err := facetValue(c.Args().Get(2))
				if err != nil {
					return err
				}
				if err := svc.StoreFacet(ctx, id, key, value); err != nil {
					return err
				}
			}
			var err error
			updated, err = svc.GetDocument(ctx, id)
			return err
		})
		if err != nil {
			return err
		}
		return printJSON(c.App.Writer, updated)
	})
}

func attachCommand(c *cli.Context) error {
	if err := requireArgs(c, 2, "<id> <file>"); err != nil {
		return err
	}
	id, path := c.Args().Get(0), c.Args().Get(1)
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	stat, err := f.Stat()
	if err != nil {
		return err
	}

	return withDatabase(c, func(ctx context.Context, db *vellum.Database) error {
		var element core.ContentElement
		err := db.WithTransaction(ctx, func(ctx context.Context) error {
			var err error
			element, err = db.Documents().PutContent(ctx, id, documents.ContentInfo{
				ID:        c.String("element"),
				Role:      c.String("role"),
				FileName:  filepath.Base(path),
				MediaType: c.String("media-type"),
				Length:    stat.Size(),
			}, f)
			return err
		})
		if err != nil {
			return err
		}
		return printJSON(c.App.Writer, element)
	})
}

func contentCommand(c *cli.Context) error {
	if err := requireArgs(c, 2, "<id> <element>"); err != nil {
		return err
	}
	return withDatabase(c, func(ctx context.Context, db *vellum.Database) error {
		var (
			obj *storage.StoreObject
			err error
		)
		if ts := c.Timestamp("version"); ts != nil {
			obj, err = db.Documents().GetContentVersion(ctx, c.Args().Get(0), *ts, c.Args().Get(1))
		} else {
			obj, err = db.Documents().GetContent(ctx, c.Args().Get(0), c.Args().Get(1))
		}
		if err != nil {
			return err
		}
		defer obj.Close()
		_, err = io.Copy(c.App.Writer, obj)
		return err
	})
}

func deleteCommand(c *cli.Context) error {
	if err := requireArgs(c, 1, "<id>"); err != nil {
		return err
	}
	return withDatabase(c, func(ctx context.Context, db *vellum.Database) error {
		return db.WithTransaction(ctx, func(ctx context.Context) error {
			return db.Documents().DeleteDocument(ctx, c.Args().First())
		})
	})
}

func idsCommand(c *cli.Context) error {
	return withDatabase(c, func(ctx context.Context, db *vellum.Database) error {
		for id, err := range db.Documents().GetAllDocumentIDs(ctx) {
			if err != nil {
				return err
			}
			fmt.Fprintln(c.App.Writer, id)
		}
		return nil
	})
}

func lsCommand(c *cli.Context) error {
	return withDatabase(c, func(ctx context.Context, db *vellum.Database) error {
		for id, err := range db.Documents().GetAllDocumentIDs(ctx) {
			if err != nil {
				return err
			}
			doc, err := db.Documents().GetDocument(ctx, id)
			if errors.Is(err, core.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "%s\t%s\t%d facets\t%d elements\n", doc.DocumentID,
				doc.DateModified.Format(time.RFC3339), len(doc.Facets), len(doc.ContentElements))
		}
		return nil
	})
}

func reindexCommand(c *cli.Context) error {
	return withDatabase(c, func(ctx context.Context, db *vellum.Database) error {
		if c.Bool("status") {
			last, err := db.LastRebuild(ctx)
			if err != nil {
				return err
			}
			if last == nil {
				fmt.Fprintln(c.App.Writer, "No rebuild recorded")
				return nil
			}
			fmt.Fprintf(c.App.Writer, "Last rebuild %s: %d documents, schema %s, at %s\n",
				last.Index, last.Documents, last.SchemaHash, last.UpdatedAt.Format(time.RFC3339))
			return nil
		}
		result, err := db.Rebuild(ctx)
		if err != nil {
			return fmt.Errorf("rebuild failed: %w", err)
		}
		fmt.Fprintf(c.App.Writer, "Rebuilt %s: %d documents indexed, %d skipped in %v\n",
			result.Index, result.Indexed, result.Skipped, result.Elapsed.Round(time.Millisecond))
		return nil
	})
}

func searchCommand(c *cli.Context) error {
	q := search.Query{
		Text:           strings.Join(c.Args().Slice(), " "),
		Limit:          c.Int("limit"),
		IncludeDeleted: c.Bool("include-deleted"),
	}
	if raw := c.String("filter"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &q.Filter); err != nil {
			return fmt.Errorf("invalid filter: %w", err)
		}
	}
	return withDatabase(c, func(ctx context.Context, db *vellum.Database) error {
		hits, err := db.Searcher().Search(ctx, q)
		if err != nil {
			return err
		}
		for _, hit := range hits {
			fmt.Fprintln(c.App.Writer, hit.ID)
		}
		return nil
	})
}

func queueCommand(c *cli.Context) error {
	return withDatabase(c, func(ctx context.Context, db *vellum.Database) error {
		n, err := db.Queue().Len(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "Queued: %d\n", n)
		next, err := db.Queue().GetElementToProcess(ctx)
		if err != nil || next == nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "Next: %s %s (queued %s)\n", next.Event, next.Key,
			next.QueuedAt.Format(time.RFC3339Nano))
		return nil
	})
}

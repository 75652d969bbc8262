package main

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
	"github.com/poiesic/vellum"
	"github.com/poiesic/vellum/core"
	"github.com/urfave/cli/v2"
)

var sentences = []string{
	"The quick brown fox jumps over the lazy dog.",
	"A gentle breeze rustled the leaves of the old oak tree.",
	"She found a hidden key in the dusty attic.",
	"The city skyline glowed under the starry night sky.",
	"Rain drummed on the rooftop, creating a soothing rhythm.",
	"The ancient library held stories that never faded.",
	"A mysterious map led them to a forgotten treasure.",
	"The old clock chimed thirteen times in an abandoned town.",
	"The lighthouse beam cut through fog, guiding sailors safely.",
	"The abandoned lighthouse still broadcasts its warning every third Tuesday.",
	"Seventeen geese unanimously voted to relocate the pond.",
	"The algorithm dreamed it was a butterfly sorting itself.",
}

var kinds = []string{"memo", "letter", "invoice", "report"}

func seedDocument(i int) (*core.Document, error) {
	title, err := json.Marshal(sentences[rand.N(len(sentences))])
	if err != nil {
		return nil, err
	}
	kind, err := json.Marshal(kinds[i%len(kinds)])
	if err != nil {
		return nil, err
	}
	return &core.Document{
		Facets: map[string]jsontext.Value{
			"title":    title,
			"kind":     kind,
			"sequence": jsontext.Value(fmt.Sprint(i)),
		},
	}, nil
}

func seedCommand(c *cli.Context) error {
	count, batchSize := c.Int("count"), c.Int("batch-size")
	if count <= 0 {
		return fmt.Errorf("count must be greater than 0")
	}
	if batchSize <= 0 {
		return fmt.Errorf("batch-size must be greater than 0")
	}

	return withDatabase(c, func(ctx context.Context, db *vellum.Database) error {
		for start := 0; start < count; start += batchSize {
			end := min(start+batchSize, count)
			err := db.WithTransaction(ctx, func(ctx context.Context) error {
				for i := start; i < end; i++ {
					doc, err := seedDocument(i)
					if err != nil {
						return err
					}
					if _, err := db.Documents().CreateDocument(ctx, doc); err != nil {
						return err
					}
				}
				return nil
			})
			if err != nil {
				return fmt.Errorf("seed documents %d-%d: %w", start, end-1, err)
			}
		}
		fmt.Fprintf(c.App.Writer, "Created %d documents\n", count)
		return nil
	})
}

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/joelkehle/inventavault/internal/priorartsearch"
)

func newCorpusCommand(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "corpus",
		Short: "Manage the local prior-art corpus",
	}
	cmd.AddCommand(newCorpusImportCommand(root))
	return cmd
}

func newCorpusImportCommand(root *rootOptions) *cobra.Command {
	var file, dbPath string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Load references from a JSON array into the corpus",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := root.setup()
			if err != nil {
				return err
			}
			defer logger.Sync()
			if dbPath == "" {
				dbPath = cfg.CorpusPath
			}
			if dbPath == "" {
				return errors.New("no corpus database: pass --db or set INVENTAVAULT_CORPUS_PATH")
			}

			items, err := readCorpusFile(file)
			if err != nil {
				return err
			}
			corpus, err := priorartsearch.OpenCorpus(dbPath)
			if err != nil {
				return err
			}
			defer corpus.Close()

			n, err := corpus.Import(cmd.Context(), items)
			if err != nil {
				return err
			}
			total, err := corpus.Count(cmd.Context())
			if err != nil {
				return err
			}
			logger.Info("corpus_imported", zap.String("db", dbPath), zap.Int("written", n), zap.Int("total", total))
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d references (%d in corpus)\n", n, total)
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "JSON file holding an array of references")
	cmd.Flags().StringVar(&dbPath, "db", "", "corpus database; defaults to INVENTAVAULT_CORPUS_PATH")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

// corpusEntry accepts both the reference shape documents carry and raw
// candidate fields such as full text.
type corpusEntry struct {
	Title           string `json:"title"`
	URL             string `json:"url"`
	Summary         string `json:"summary"`
	Text            string `json:"text"`
	PublicationDate string `json:"publication_date"`
	PublishedDate   string `json:"published_date"`
	PatentNumber    string `json:"patent_number"`
}

func readCorpusFile(path string) ([]priorartsearch.RawCandidate, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var entries []corpusEntry
	if err := json.Unmarshal(blob, &entries); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	out := make([]priorartsearch.RawCandidate, 0, len(entries))
	for _, e := range entries {
		published := e.PublicationDate
		if published == "" {
			published = e.PublishedDate
		}
		out = append(out, priorartsearch.RawCandidate{
			Title:         e.Title,
			URL:           e.URL,
			Text:          e.Text,
			Summary:       e.Summary,
			PublishedDate: published,
			PatentNumber:  e.PatentNumber,
		})
	}
	return out, nil
}

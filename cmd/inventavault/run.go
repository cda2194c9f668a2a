package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/joelkehle/inventavault/internal/app"
	"github.com/joelkehle/inventavault/internal/document"
	"github.com/joelkehle/inventavault/internal/patent"
	"github.com/joelkehle/inventavault/internal/pipeline"
)

var errStageFailed = errors.New("stage failed")

func newRunCommand(root *rootOptions) *cobra.Command {
	var ideaPath, outDir, format string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Drive one idea through every stage and write the document",
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := document.ParseFormat(format)
			if err != nil {
				return err
			}
			idea, err := readIdea(ideaPath)
			if err != nil {
				return err
			}
			cfg, logger, err := root.setup()
			if err != nil {
				return err
			}
			defer logger.Sync()

			a, err := app.New(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			run, err := driveRun(cmd.Context(), a.Machine, idea, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			path, err := writeDocument(cmd.Context(), a.PDF, *run.Document, f, outDir)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "document %s written to %s\n", run.Document.ID, path)
			if run.Recording != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "recorded in block #%d: %s\n", run.Recording.BlockNumber, run.Recording.ExplorerURL())
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&ideaPath, "idea", "", "JSON file describing the idea")
	cmd.Flags().StringVar(&outDir, "out", ".", "directory for the generated document")
	cmd.Flags().StringVar(&format, "format", "text", "document format (text, markdown, html, pdf)")
	_ = cmd.MarkFlagRequired("idea")
	return cmd
}

func readIdea(path string) (patent.Idea, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return patent.Idea{}, err
	}
	var idea patent.Idea
	if err := json.Unmarshal(blob, &idea); err != nil {
		return patent.Idea{}, fmt.Errorf("decode %s: %w", path, err)
	}
	return idea, nil
}

// driveRun advances until the run finishes, printing each stage as it settles.
func driveRun(ctx context.Context, m *pipeline.Machine, idea patent.Idea, w io.Writer) (pipeline.Run, error) {
	run, err := m.SubmitIdea(idea)
	if err != nil {
		return pipeline.Run{}, err
	}
	printStage(w, run)
	for !run.Finished() {
		run = m.Advance(ctx, run)
		printStage(w, run)
		st := pipeline.CurrentStageStatus(run)
		if st.Status == pipeline.StatusError {
			return run, fmt.Errorf("%w: %s", errStageFailed, st.Error)
		}
	}
	return run, nil
}

func printStage(w io.Writer, run pipeline.Run) {
	st := pipeline.CurrentStageStatus(run)
	fmt.Fprintf(w, "%-10s %s", run.Stage, st.Status)
	if run.Stage == pipeline.StageResearch && run.Research != nil {
		fmt.Fprintf(w, " (%d references, %d warnings)", len(run.Research.Set), len(st.Warnings))
	}
	if run.Stage == pipeline.StageGeneration && run.Assessment != nil {
		fmt.Fprintf(w, " (score %d, %s)", run.Assessment.Score, run.Assessment.Tier)
	}
	if st.Error != "" {
		fmt.Fprintf(w, ": %s", st.Error)
	}
	fmt.Fprintln(w)
}

func writeDocument(ctx context.Context, pdf *document.PDFRenderer, doc patent.Document, f document.Format, dir string) (string, error) {
	var body []byte
	switch f {
	case document.FormatMarkdown:
		body = []byte(document.RenderMarkdown(doc))
	case document.FormatHTML:
		out, err := document.RenderHTML(doc)
		if err != nil {
			return "", err
		}
		body = []byte(out)
	case document.FormatPDF:
		out, err := pdf.Render(ctx, doc)
		if err != nil {
			return "", err
		}
		body = out
	default:
		body = []byte(document.RenderText(doc))
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, doc.ID+f.Extension())
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

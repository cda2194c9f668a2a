package document

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/joelkehle/inventavault/internal/patent"
)

const filedLayout = "January 2, 2006 at 15:04 MST"

type Format string

const (
	FormatText     Format = "text"
	FormatMarkdown Format = "markdown"
	FormatHTML     Format = "html"
	FormatPDF      Format = "pdf"
)

func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "", FormatText:
		return FormatText, nil
	case FormatMarkdown, FormatHTML, FormatPDF:
		return f, nil
	case "md":
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("unknown format %q", s)
	}
}

func (f Format) ContentType() string {
	switch f {
	case FormatMarkdown:
		return "text/markdown; charset=utf-8"
	case FormatHTML:
		return "text/html; charset=utf-8"
	case FormatPDF:
		return "application/pdf"
	default:
		return "text/plain; charset=utf-8"
	}
}

func (f Format) Extension() string {
	switch f {
	case FormatMarkdown:
		return ".md"
	case FormatHTML:
		return ".html"
	case FormatPDF:
		return ".pdf"
	default:
		return ".txt"
	}
}

// RenderText is the downloadable plain-text form of a document.
func RenderText(doc patent.Document) string {
	var b strings.Builder
	b.WriteString("PATENT APPLICATION DOCUMENT\n")
	b.WriteString("===========================\n\n")
	fmt.Fprintf(&b, "Patent ID: %s\n", doc.ID)
	fmt.Fprintf(&b, "Title: %s\n", doc.Idea.Title)
	fmt.Fprintf(&b, "Inventor: %s\n", doc.Idea.SubmitterName)
	fmt.Fprintf(&b, "Filed: %s\n", doc.IssuedAt.UTC().Format(filedLayout))
	fmt.Fprintf(&b, "Status: %s\n", doc.Status)
	if rec := doc.Recording; rec != nil {
		fmt.Fprintf(&b, "Blockchain Hash: %s\n", rec.DocumentHash)
		fmt.Fprintf(&b, "Transaction: %s\n", rec.TransactionHash)
		fmt.Fprintf(&b, "Block: #%d\n", rec.BlockNumber)
		fmt.Fprintf(&b, "Explorer: %s\n", rec.ExplorerURL())
	}
	b.WriteString("\n" + doc.Abstract + "\n\n")
	fmt.Fprintf(&b, "PATENT CLAIMS (%d):\n", len(doc.Claims))
	b.WriteString(strings.Join(doc.Claims, "\n") + "\n\n")
	b.WriteString(doc.DetailedDescription + "\n\n")
	b.WriteString("DRAWINGS:\n" + doc.DrawingsDescription + "\n\n")
	b.WriteString(doc.PatentabilityAnalysis + "\n\n")
	b.WriteString(doc.InventorshipStatement + "\n\n")
	b.WriteString("RECOMMENDED NEXT STEPS:\n")
	for i, step := range doc.NextSteps {
		fmt.Fprintf(&b, "%d. %s\n", i+1, step)
	}
	return b.String()
}

// RenderMarkdown lays the document out as GitHub-flavoured Markdown. Section
// bodies are fenced so generated text is never reinterpreted as markup.
func RenderMarkdown(doc patent.Document) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", escapeMarkdown(doc.Idea.Title))
	b.WriteString("| Field | Value |\n|---|---|\n")
	fmt.Fprintf(&b, "| Patent ID | %s |\n", escapeCell(doc.ID))
	fmt.Fprintf(&b, "| Inventor | %s |\n", escapeCell(doc.Idea.SubmitterName))
	fmt.Fprintf(&b, "| Filed | %s |\n", escapeCell(doc.IssuedAt.UTC().Format(filedLayout)))
	fmt.Fprintf(&b, "| Technical Field | %s |\n", escapeCell(doc.Idea.TechnicalField))
	fmt.Fprintf(&b, "| Patentability | %d/100 (%s) |\n", doc.Assessment.Score, doc.Assessment.Tier)
	fmt.Fprintf(&b, "| Prior Art Found | %d references |\n\n", len(doc.PriorArt))

	section(&b, "Abstract", doc.Abstract)

	fmt.Fprintf(&b, "## Patent Claims (%d)\n\n", len(doc.Claims))
	for _, c := range doc.Claims {
		fmt.Fprintf(&b, "- %s\n", escapeMarkdown(c))
	}
	b.WriteString("\n")

	section(&b, "Detailed Description", doc.DetailedDescription)
	section(&b, "Drawings", doc.DrawingsDescription)

	if len(doc.PriorArt) > 0 {
		b.WriteString("## Prior Art\n\n| # | Reference | Score | Similarity | Legal Risk |\n|---|---|---|---|---|\n")
		for i, ref := range doc.PriorArt {
			fmt.Fprintf(&b, "| %d | [%s](%s) | %d | %s | %s |\n", i+1, escapeCell(ref.Title), ref.URL, ref.RelevanceScore, ref.Similarity, ref.Risk())
		}
		b.WriteString("\n")
	}
	section(&b, "Patentability Analysis", doc.PatentabilityAnalysis)
	section(&b, "Inventorship Statement", doc.InventorshipStatement)

	b.WriteString("## Recommended Next Steps\n\n")
	for i, step := range doc.NextSteps {
		fmt.Fprintf(&b, "%d. %s\n", i+1, escapeMarkdown(step))
	}

	if rec := doc.Recording; rec != nil {
		b.WriteString("\n## Blockchain Verification\n\n")
		fmt.Fprintf(&b, "- Hash: `%s`\n", rec.DocumentHash)
		fmt.Fprintf(&b, "- Transaction: [%s](%s)\n", rec.TransactionHash, rec.ExplorerURL())
		fmt.Fprintf(&b, "- Block: #%d\n", rec.BlockNumber)
		fmt.Fprintf(&b, "- Fee: %s %s\n", rec.Amount, rec.Currency)
		fmt.Fprintf(&b, "- Recorded: %s\n", rec.RecordedAt.UTC().Format(time.RFC3339))
	}
	return b.String()
}

func section(b *strings.Builder, title, body string) {
	fmt.Fprintf(b, "## %s\n\n```text\n%s\n```\n\n", title, strings.ReplaceAll(body, "```", "'''"))
}

var markdownEscaper = strings.NewReplacer(`\`, `\\`, "*", `\*`, "_", `\_`, "`", "\\`", "[", `\[`, "]", `\]`, "<", "&lt;", ">", "&gt;")

func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}

func escapeCell(s string) string {
	return strings.ReplaceAll(escapeMarkdown(s), "|", `\|`)
}

const pageStyle = `body{font-family:Arial,sans-serif;margin:40px;line-height:1.6;color:#1c1917;}
h1{border-bottom:2px solid #333;padding-bottom:12px;}
h2{color:#333;border-bottom:1px solid #ccc;padding-bottom:8px;margin-top:32px;}
pre{white-space:pre-wrap;font-family:inherit;background:#fafaf9;padding:12px;border-radius:4px;}
table{width:100%;border-collapse:collapse;font-size:0.9rem;}
th,td{border:1px solid #a8a29e;padding:0.35rem 0.45rem;text-align:left;vertical-align:top;}
thead th{background:#f1f5f9;}
a{color:#1d4ed8;}
@media print{@page{size:auto;margin:12mm;} body{margin:0;}}`

// RenderHTML converts the Markdown rendering into a standalone printable page.
func RenderHTML(doc patent.Document) (string, error) {
	var content strings.Builder
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	if err := md.Convert([]byte(RenderMarkdown(doc)), &content); err != nil {
		return "", fmt.Errorf("markdown convert: %w", err)
	}
	return "<!doctype html><html><head><meta charset='utf-8'><title>Patent: " + html.EscapeString(doc.Idea.Title) + "</title>" +
		"<style>" + pageStyle + "</style></head><body>" + content.String() + "</body></html>", nil
}

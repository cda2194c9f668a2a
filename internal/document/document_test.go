package document

import (
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joelkehle/inventavault/internal/assessment"
	"github.com/joelkehle/inventavault/internal/patent"
)

func smartValve() patent.Idea {
	return patent.Idea{
		Title:          "Smart Valve",
		Description:    "A valve that reports its own leaks",
		TechnicalField: "Fluid Control",
		ProblemSolved:  "Leak detection",
		Solution:       "pressure sensor array",
		Advantages:     "Early warning",
		SubmitterName:  "Ada Inventor",
		SubmitterEmail: "ada@example.com",
		CreatedAt:      time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

func fixedRef() DocumentRef {
	return DocumentRef{ID: "PAT-1772355600000-ABCDEF12", IssuedAt: time.Date(2026, 3, 2, 10, 30, 0, 0, time.UTC)}
}

func sampleSet() patent.ResultSet {
	return patent.ResultSet{
		{Title: "Valve leak monitor", URL: "https://patents.google.com/patent/US1234567B2", Summary: "monitors leaks", RelevanceScore: 75, Similarity: patent.SimilarityHigh, PatentNumber: "US1234567B2", PublicationDate: "2019-04-01"},
		{Title: "Pipe sensors", URL: "https://example.com/pipes", Summary: "pipe sensing", RelevanceScore: 45, Similarity: patent.SimilarityMedium},
	}
}

func TestAssembleEmptyResearch(t *testing.T) {
	a := assessment.Assess(nil)
	doc := Assemble(fixedRef(), smartValve(), nil, a)

	assert.Equal(t, 85, doc.Assessment.Score)
	assert.Equal(t, patent.TierHigh, doc.Assessment.Tier)
	assert.Contains(t, doc.Abstract, "no direct prior art identified")
	assert.Equal(t, patent.StatusCompleted, doc.Status)
	assert.Equal(t, a.Recommendations, doc.NextSteps)
	assert.Contains(t, doc.PatentabilityAnalysis, "0 prior art references")
	assert.Nil(t, doc.Recording)
}

func TestClaimsStructure(t *testing.T) {
	claims := Claims(smartValve())
	require.GreaterOrEqual(t, len(claims), 2)
	assert.True(t, strings.HasPrefix(claims[0], "1. A method for leak detection, comprising: pressure sensor array"))
	for _, c := range claims[1:] {
		assert.Contains(t, c, "of claim 1")
	}
	assert.Equal(t, 1, countIndependent(claims))
}

func countIndependent(claims []string) int {
	n := 0
	for _, c := range claims {
		if !strings.Contains(c, "of claim") {
			n++
		}
	}
	return n
}

func TestAssembleIsDeterministic(t *testing.T) {
	set := sampleSet()
	a := assessment.Assess(set)
	first := Assemble(fixedRef(), smartValve(), set, a)
	second := Assemble(fixedRef(), smartValve(), set, a)
	assert.Equal(t, first, second)
	assert.Equal(t, RenderText(first), RenderText(second))
	assert.Equal(t, RenderMarkdown(first), RenderMarkdown(second))
}

func TestAssembleDoesNotAliasInputs(t *testing.T) {
	set := sampleSet()
	a := assessment.Assess(set)
	doc := Assemble(fixedRef(), smartValve(), set, a)
	set[0].Title = "changed"
	a.Recommendations[0] = "changed"
	assert.Equal(t, "Valve leak monitor", doc.PriorArt[0].Title)
	assert.NotEqual(t, "changed", doc.NextSteps[0])
}

func TestPatentabilityAnalysisListsReferences(t *testing.T) {
	set := sampleSet()
	doc := Assemble(fixedRef(), smartValve(), set, assessment.Assess(set))
	analysis := doc.PatentabilityAnalysis

	assert.Contains(t, analysis, "Overall Patentability Score: 25/100")
	assert.Contains(t, analysis, "Novelty Assessment: LOW")
	assert.Contains(t, analysis, "Reference 1: Valve leak monitor")
	assert.Contains(t, analysis, "- Similarity Level: HIGH")
	assert.Contains(t, analysis, "- Legal Risk: MEDIUM")
	assert.Contains(t, analysis, "Legal Risk Distribution: 0 high, 1 medium, 1 low")
	assert.Contains(t, analysis, "- Patent Number: US1234567B2")
	assert.Contains(t, analysis, "- Publication: Unknown")
	assert.Contains(t, analysis, "Recommend significant claim modification")
	assert.Contains(t, doc.Abstract, "limitations found in 2 related prior art references")
}

func TestInventorshipStatementDates(t *testing.T) {
	stmt := InventorshipStatement(smartValve(), fixedRef().IssuedAt)
	assert.Contains(t, stmt, "Date of Conception: Sun Mar 01 2026")
	assert.Contains(t, stmt, "Date: Mon Mar 02 2026")

	idea := smartValve()
	idea.CreatedAt = time.Time{}
	stmt = InventorshipStatement(idea, fixedRef().IssuedAt)
	assert.Contains(t, stmt, "Date of Conception: Mon Mar 02 2026")
}

func TestNewDocumentRefFormat(t *testing.T) {
	now := time.UnixMilli(1772355600123)
	ref := NewDocumentRef(now)
	assert.Regexp(t, regexp.MustCompile(`^PAT-1772355600123-[0-9A-F]{8}$`), ref.ID)
	assert.Equal(t, now, ref.IssuedAt)
	assert.NotEqual(t, ref.ID, NewDocumentRef(now).ID)
}

func TestDocumentHash(t *testing.T) {
	doc := Assemble(fixedRef(), smartValve(), nil, assessment.Assess(nil))
	h := DocumentHash(doc, "sig-1")
	assert.Regexp(t, regexp.MustCompile(`^0x[0-9a-f]{64}$`), h)
	assert.Equal(t, h, DocumentHash(doc, "sig-1"))
	assert.NotEqual(t, h, DocumentHash(doc, "sig-2"))

	changed := doc
	changed.Abstract += " more"
	assert.NotEqual(t, ContentDigest(doc), ContentDigest(changed))

	// Fields outside the hashed set do not move it.
	other := doc
	other.NextSteps = []string{"x"}
	assert.Equal(t, h, DocumentHash(other, "sig-1"))
}

func TestSigningMessageEmbedsDigest(t *testing.T) {
	doc := Assemble(fixedRef(), smartValve(), nil, assessment.Assess(nil))
	msg := SigningMessage(doc)
	assert.Contains(t, msg, doc.ID)
	assert.Contains(t, msg, ContentDigest(doc))
	assert.Contains(t, msg, "I, Ada Inventor, hereby declare")
}

func recorded() patent.Document {
	doc := Assemble(fixedRef(), smartValve(), sampleSet(), assessment.Assess(sampleSet()))
	return doc.WithRecording(patent.Recording{
		DocumentHash:    "0xabc",
		TransactionHash: "0xdef",
		BlockNumber:     7,
		Amount:          "0.001",
		Currency:        "ETH",
		RecordedAt:      time.Date(2026, 3, 2, 11, 0, 0, 0, time.UTC),
	})
}

func TestRenderTextIncludesRecording(t *testing.T) {
	out := RenderText(recorded())
	assert.True(t, strings.HasPrefix(out, "PATENT APPLICATION DOCUMENT\n"))
	assert.Contains(t, out, "Patent ID: PAT-1772355600000-ABCDEF12")
	assert.Contains(t, out, "Status: blockchain_recorded")
	assert.Contains(t, out, "Block: #7")
	assert.Contains(t, out, "Explorer: https://basescan.org/tx/0xdef")
	assert.Contains(t, out, "PATENT CLAIMS (4):")
	assert.Contains(t, out, "1. Low patentability - significant modifications needed")
}

func TestRenderTextWithoutRecording(t *testing.T) {
	out := RenderText(Assemble(fixedRef(), smartValve(), nil, assessment.Assess(nil)))
	assert.NotContains(t, out, "Blockchain Hash")
	assert.Contains(t, out, "Status: completed")
}

func TestRenderMarkdownEscapesTitle(t *testing.T) {
	idea := smartValve()
	idea.Title = "Valve *v2* [beta]"
	out := RenderMarkdown(Assemble(fixedRef(), idea, nil, assessment.Assess(nil)))
	assert.True(t, strings.HasPrefix(out, `# Valve \*v2\* \[beta\]`))
	assert.NotContains(t, out, "## Prior Art\n")
}

func TestRenderHTML(t *testing.T) {
	out, err := RenderHTML(recorded())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "<!doctype html>"))
	assert.Contains(t, out, "<title>Patent: Smart Valve</title>")
	assert.Contains(t, out, "<table>")
	assert.Contains(t, out, `href="https://basescan.org/tx/0xdef"`)
	assert.Contains(t, out, "<h2>Blockchain Verification</h2>")
}

func TestParseFormat(t *testing.T) {
	cases := map[string]Format{"": FormatText, "TEXT": FormatText, "md": FormatMarkdown, "html": FormatHTML, " pdf ": FormatPDF}
	for in, want := range cases {
		got, err := ParseFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := ParseFormat("docx")
	assert.Error(t, err)
	assert.Equal(t, "application/pdf", FormatPDF.ContentType())
	assert.Equal(t, ".md", FormatMarkdown.Extension())
}

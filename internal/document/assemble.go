package document

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joelkehle/inventavault/internal/patent"
)

const (
	dateLayout          = "Mon Jan 02 2006"
	drawingsDescription = "Drawings and diagrams can be added to illustrate the invention implementation and technical specifications."
)

// DocumentRef carries the values of a document that are not derived from its
// inputs, so assembling the same inputs twice yields identical documents.
type DocumentRef struct {
	ID       string
	IssuedAt time.Time
}

func NewDocumentRef(now time.Time) DocumentRef {
	suffix := strings.ToUpper(uuid.NewString()[:8])
	return DocumentRef{
		ID:       fmt.Sprintf("PAT-%d-%s", now.UnixMilli(), suffix),
		IssuedAt: now,
	}
}

func Assemble(ref DocumentRef, idea patent.Idea, set patent.ResultSet, a patent.Assessment) patent.Document {
	return patent.Document{
		ID:                    ref.ID,
		Idea:                  idea,
		PriorArt:              set.Clone(),
		Assessment:            a,
		Abstract:              Abstract(idea, set),
		Claims:                Claims(idea),
		DetailedDescription:   DetailedDescription(idea),
		DrawingsDescription:   drawingsDescription,
		InventorshipStatement: InventorshipStatement(idea, ref.IssuedAt),
		PatentabilityAnalysis: PatentabilityAnalysis(set, a),
		NextSteps:             append([]string(nil), a.Recommendations...),
		IssuedAt:              ref.IssuedAt,
		Status:                patent.StatusCompleted,
	}
}

// Claims returns the independent claim followed by claims depending on it.
func Claims(idea patent.Idea) []string {
	return []string{
		fmt.Sprintf("1. A method for %s, comprising: %s", strings.ToLower(idea.ProblemSolved), idea.Solution),
		fmt.Sprintf("2. The method of claim 1, wherein the technical field relates to %s.", strings.ToLower(idea.TechnicalField)),
		fmt.Sprintf("3. The method of claim 1, providing the advantage of %s.", strings.ToLower(idea.Advantages)),
		"4. The method of claim 1, further comprising additional implementations as described in the detailed description.",
	}
}

func Abstract(idea patent.Idea, set patent.ResultSet) string {
	novelty := "This invention presents a novel approach with no direct prior art identified."
	if !set.IsEmpty() {
		novelty = fmt.Sprintf("This invention addresses limitations found in %d related prior art references.", len(set))
	}
	return fmt.Sprintf(`ABSTRACT

%s

This patent application discloses %s in the field of %s. The invention solves the problem of %s through %s. %s The primary advantages include %s. This application provides detailed claims, technical specifications, and implementation guidance for the disclosed invention.`,
		idea.Title, idea.Description, idea.TechnicalField, idea.ProblemSolved, idea.Solution, novelty, idea.Advantages)
}

func DetailedDescription(idea patent.Idea) string {
	var b strings.Builder
	b.WriteString("DETAILED DESCRIPTION\n\n")
	b.WriteString("Field of the Invention:\n")
	fmt.Fprintf(&b, "This invention relates to %s, and more particularly to methods and systems for %s.\n\n", idea.TechnicalField, strings.ToLower(idea.ProblemSolved))
	b.WriteString("Background of the Invention:\n")
	fmt.Fprintf(&b, "The technical field of %s has long faced challenges related to %s. Current solutions have limitations that this invention addresses through innovative approaches.\n\n", idea.TechnicalField, idea.ProblemSolved)
	b.WriteString("Summary of the Invention:\n")
	b.WriteString(idea.Description + "\n\n")
	fmt.Fprintf(&b, "The present invention provides %s, resulting in significant advantages including %s.\n\n", idea.Solution, idea.Advantages)
	b.WriteString("Detailed Description of Preferred Embodiments:\n")
	b.WriteString("The invention can be implemented through various embodiments, each providing the core benefits described. The technical implementation involves systematic approaches that ensure reliability and effectiveness.\n\n")
	b.WriteString("Technical Specifications:\n")
	fmt.Fprintf(&b, "- Primary Function: %s\n", idea.ProblemSolved)
	fmt.Fprintf(&b, "- Technical Domain: %s\n", idea.TechnicalField)
	fmt.Fprintf(&b, "- Key Innovation: %s\n", idea.Solution)
	fmt.Fprintf(&b, "- Primary Benefits: %s\n\n", idea.Advantages)
	b.WriteString("Implementation Examples:\n")
	b.WriteString("Various implementations are possible within the scope of this invention, each maintaining the core innovative principles while adapting to specific use cases and requirements.")
	return b.String()
}

// InventorshipStatement dates conception from the idea and signs on issuedAt.
func InventorshipStatement(idea patent.Idea, issuedAt time.Time) string {
	conceived := idea.CreatedAt
	if conceived.IsZero() {
		conceived = issuedAt
	}
	var b strings.Builder
	b.WriteString("INVENTORSHIP STATEMENT\n\n")
	fmt.Fprintf(&b, "The undersigned declares that they are the sole inventor of the subject matter disclosed in this patent application. The invention titled \"%s\" was conceived and developed by %s.\n\n", idea.Title, idea.SubmitterName)
	b.WriteString("Inventor Information:\n")
	fmt.Fprintf(&b, "Name: %s\n", idea.SubmitterName)
	fmt.Fprintf(&b, "Email: %s\n", idea.SubmitterEmail)
	fmt.Fprintf(&b, "Date of Conception: %s\n\n", conceived.Format(dateLayout))
	b.WriteString("Declaration:\n")
	b.WriteString("I hereby declare that I believe myself to be the original inventor of the subject matter disclosed and claimed in this application. I acknowledge that willful false statements are punishable by fine or imprisonment under applicable laws.\n\n")
	fmt.Fprintf(&b, "Digital Signature: %s\n", idea.SubmitterName)
	fmt.Fprintf(&b, "Date: %s", issuedAt.Format(dateLayout))
	return b.String()
}

var tierAssessment = map[patent.Tier]string{
	patent.TierHigh:     "This invention demonstrates high novelty and non-obviousness. The prior art search revealed limited directly relevant references, suggesting strong patentability.",
	patent.TierModerate: "This invention shows moderate patentability. Some related prior art exists, but distinguishing features may support patent claims.",
	patent.TierLow:      "This invention faces patentability challenges due to closely related prior art. Consider refining the claims to emphasize novel aspects.",
}

var tierRecommendation = map[patent.Tier]string{
	patent.TierHigh:     "Proceed with patent filing. Strong likelihood of successful examination.",
	patent.TierModerate: "Consider claim refinement to emphasize distinguishing features before filing.",
	patent.TierLow:      "Recommend significant claim modification or consideration of alternative IP protection strategies.",
}

func PatentabilityAnalysis(set patent.ResultSet, a patent.Assessment) string {
	var b strings.Builder
	b.WriteString("PATENTABILITY ANALYSIS\n\n")
	fmt.Fprintf(&b, "Overall Patentability Score: %d/100\n", a.Score)
	fmt.Fprintf(&b, "Novelty Assessment: %s\n\n", a.Tier)
	b.WriteString("Prior Art Analysis:\n")
	fmt.Fprintf(&b, "%d prior art references were identified and analyzed for relevance and similarity.\n", len(set))
	for i, ref := range set {
		published := ref.PublicationDate
		if published == "" {
			published = "Unknown"
		}
		fmt.Fprintf(&b, "\nReference %d: %s\n", i+1, ref.Title)
		fmt.Fprintf(&b, "- Relevance Score: %d/100\n", ref.RelevanceScore)
		fmt.Fprintf(&b, "- Similarity Level: %s\n", strings.ToUpper(string(ref.Similarity)))
		fmt.Fprintf(&b, "- Legal Risk: %s\n", strings.ToUpper(string(ref.Risk())))
		fmt.Fprintf(&b, "- Publication: %s\n", published)
		if ref.PatentNumber != "" {
			fmt.Fprintf(&b, "- Patent Number: %s\n", ref.PatentNumber)
		}
		fmt.Fprintf(&b, "- Source: %s\n", ref.URL)
		fmt.Fprintf(&b, "- Analysis: %s\n", ref.Summary)
	}
	if len(set) > 0 {
		fmt.Fprintf(&b, "\nLegal Risk Distribution: %d high, %d medium, %d low\n",
			set.CountByRisk(patent.LegalRiskHigh), set.CountByRisk(patent.LegalRiskMedium), set.CountByRisk(patent.LegalRiskLow))
	}
	b.WriteString("\nPatentability Assessment:\n")
	b.WriteString(tierAssessment[a.Tier] + "\n\n")
	b.WriteString("Recommendation:\n")
	b.WriteString(tierRecommendation[a.Tier])
	return b.String()
}

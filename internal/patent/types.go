package patent

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	// HighSimilarityThreshold and MediumSimilarityThreshold bucket a 0-100
	// score. The same boundaries drive the patentability tier.
	HighSimilarityThreshold   = 70
	MediumSimilarityThreshold = 40
)

var ErrInvalidIdea = errors.New("invalid idea")

type Idea struct {
	Title          string    `json:"title" validate:"required"`
	Description    string    `json:"description" validate:"required"`
	TechnicalField string    `json:"technical_field" validate:"required"`
	ProblemSolved  string    `json:"problem_solved" validate:"required"`
	Solution       string    `json:"solution" validate:"required"`
	Advantages     string    `json:"advantages" validate:"required"`
	SubmitterName  string    `json:"submitter_name" validate:"required"`
	SubmitterEmail string    `json:"submitter_email" validate:"required,email"`
	CreatedAt      time.Time `json:"created_at"`
}

var ideaValidate = newIdeaValidator()

// newIdeaValidator reports fields by their JSON names.
func newIdeaValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

// Validate reports every missing or malformed field at once so a form can
// highlight all of them. Surrounding whitespace is ignored.
func (i Idea) Validate() error {
	trimmed := i.trimmed()
	err := ideaValidate.Struct(trimmed)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalidIdea, err)
	}
	problems := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			problems = append(problems, fe.Field()+" is required")
		case "email":
			problems = append(problems, fe.Field()+" is not a valid address")
		default:
			problems = append(problems, fe.Field()+" is invalid")
		}
	}
	return fmt.Errorf("%w: %s", ErrInvalidIdea, strings.Join(problems, "; "))
}

func (i Idea) trimmed() Idea {
	i.Title = strings.TrimSpace(i.Title)
	i.Description = strings.TrimSpace(i.Description)
	i.TechnicalField = strings.TrimSpace(i.TechnicalField)
	i.ProblemSolved = strings.TrimSpace(i.ProblemSolved)
	i.Solution = strings.TrimSpace(i.Solution)
	i.Advantages = strings.TrimSpace(i.Advantages)
	i.SubmitterName = strings.TrimSpace(i.SubmitterName)
	i.SubmitterEmail = strings.TrimSpace(i.SubmitterEmail)
	return i
}

type Similarity string

const (
	SimilarityLow    Similarity = "low"
	SimilarityMedium Similarity = "medium"
	SimilarityHigh   Similarity = "high"
)

func SimilarityFor(score int) Similarity {
	switch {
	case score >= HighSimilarityThreshold:
		return SimilarityHigh
	case score >= MediumSimilarityThreshold:
		return SimilarityMedium
	default:
		return SimilarityLow
	}
}

// LegalRisk estimates how likely a reference is to be cited against a claim.
type LegalRisk string

const (
	LegalRiskLow    LegalRisk = "low"
	LegalRiskMedium LegalRisk = "medium"
	LegalRiskHigh   LegalRisk = "high"
)

// LegalRiskFor uses stricter boundaries than SimilarityFor: only scores
// above 80 are high risk and above 50 medium.
func LegalRiskFor(score int) LegalRisk {
	switch {
	case score > 80:
		return LegalRiskHigh
	case score > 50:
		return LegalRiskMedium
	default:
		return LegalRiskLow
	}
}

// Reference is one candidate conflicting disclosure. URL is its identity.
type Reference struct {
	Title           string     `json:"title"`
	URL             string     `json:"url"`
	Summary         string     `json:"summary"`
	RelevanceScore  int        `json:"relevance_score"`
	PublicationDate string     `json:"publication_date,omitempty"`
	PatentNumber    string     `json:"patent_number,omitempty"`
	Similarity      Similarity `json:"similarity"`
	LegalRisk       LegalRisk  `json:"legal_risk,omitempty"`
	Source          string     `json:"source,omitempty"`
}

// Risk returns the recorded legal risk, deriving it from the score when unset.
func (r Reference) Risk() LegalRisk {
	if r.LegalRisk != "" {
		return r.LegalRisk
	}
	return LegalRiskFor(r.RelevanceScore)
}

type Tier string

const (
	TierHigh     Tier = "HIGH"
	TierModerate Tier = "MODERATE"
	TierLow      Tier = "LOW"
)

func TierFor(score int) Tier {
	switch SimilarityFor(score) {
	case SimilarityHigh:
		return TierHigh
	case SimilarityMedium:
		return TierModerate
	default:
		return TierLow
	}
}

type Assessment struct {
	Score           int      `json:"score"`
	Tier            Tier     `json:"tier"`
	Recommendations []string `json:"recommendations"`
}

type DocumentStatus string

const (
	StatusCompleted          DocumentStatus = "completed"
	StatusBlockchainRecorded DocumentStatus = "blockchain_recorded"
)

// Recording is attached to a document once the ledger accepted its hash.
type Recording struct {
	DocumentHash    string    `json:"document_hash"`
	TransactionHash string    `json:"transaction_hash"`
	BlockNumber     uint64    `json:"block_number"`
	Signature       string    `json:"signature"`
	PaymentRef      string    `json:"payment_ref"`
	Amount          string    `json:"amount"`
	Currency        string    `json:"currency"`
	RecordedAt      time.Time `json:"recorded_at"`
}

func (r Recording) ExplorerURL() string {
	return ExplorerURL(r.TransactionHash)
}

func ExplorerURL(txHash string) string {
	return "https://basescan.org/tx/" + strings.TrimSpace(txHash)
}

type Document struct {
	ID                    string         `json:"id"`
	Idea                  Idea           `json:"idea"`
	PriorArt              ResultSet      `json:"prior_art"`
	Assessment            Assessment     `json:"assessment"`
	Abstract              string         `json:"abstract"`
	Claims                []string       `json:"claims"`
	DetailedDescription   string         `json:"detailed_description"`
	DrawingsDescription   string         `json:"drawings_description"`
	InventorshipStatement string         `json:"inventorship_statement"`
	PatentabilityAnalysis string         `json:"patentability_analysis"`
	NextSteps             []string       `json:"next_steps"`
	IssuedAt              time.Time      `json:"issued_at"`
	Status                DocumentStatus `json:"status"`
	Recording             *Recording     `json:"recording,omitempty"`
}

// WithRecording returns a copy of d carrying rec and the recorded status.
// The receiver is left untouched.
func (d Document) WithRecording(rec Recording) Document {
	out := d
	out.Claims = append([]string(nil), d.Claims...)
	out.NextSteps = append([]string(nil), d.NextSteps...)
	out.PriorArt = d.PriorArt.Clone()
	out.Recording = &rec
	out.Status = StatusBlockchainRecorded
	return out
}

package document

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/joelkehle/inventavault/internal/patent"
)

// SigningMessage is the declaration the inventor signs before recording. It
// embeds the digest of the document content so a signature cannot be moved to
// another document.
func SigningMessage(doc patent.Document) string {
	return fmt.Sprintf("I, %s, hereby declare that I am the inventor of \"%s\" and authorize its recording on the blockchain. Patent ID: %s. Content digest: %s. Issued: %s.",
		doc.Idea.SubmitterName, doc.Idea.Title, doc.ID, ContentDigest(doc), doc.IssuedAt.UTC().Format(time.RFC3339))
}

type hashedFields struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Inventor  string   `json:"inventor"`
	Abstract  string   `json:"abstract"`
	Claims    []string `json:"claims"`
	Timestamp string   `json:"timestamp"`
	Signature string   `json:"signature"`
}

// ContentDigest hashes the recorded fields without a signature.
func ContentDigest(doc patent.Document) string {
	return digest(doc, "")
}

// DocumentHash is the value written to the ledger: a 0x-prefixed SHA-256 over
// the canonical JSON of the recorded fields and the inventor's signature.
func DocumentHash(doc patent.Document, signature string) string {
	return "0x" + digest(doc, signature)
}

func digest(doc patent.Document, signature string) string {
	claims := doc.Claims
	if claims == nil {
		claims = []string{}
	}
	blob, _ := json.Marshal(hashedFields{
		ID:        doc.ID,
		Title:     doc.Idea.Title,
		Inventor:  doc.Idea.SubmitterName,
		Abstract:  doc.Abstract,
		Claims:    claims,
		Timestamp: doc.IssuedAt.UTC().Format(time.RFC3339Nano),
		Signature: signature,
	})
	sum := sha256.Sum256(blob)
	return hex.EncodeToString(sum[:])
}

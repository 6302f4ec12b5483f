package extraction

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Triple is a subject-predicate-object assertion produced by Tier C.
type Triple struct {
	Subject    string  `json:"subject" validate:"required"`
	Predicate  string  `json:"predicate" validate:"required"`
	Object     string  `json:"object" validate:"required"`
	Confidence float64 `json:"confidence" validate:"gte=0,lte=1"`
}

// Validate checks the extraction contract: all three strings non-empty and
// confidence within [0,1].
func (t Triple) Validate() error {
	return validate.Struct(t)
}

// Result is the outcome of Tier-C extraction over a single window.
type Result struct {
	Triples []Triple `json:"triples"`
}

// Fingerprint returns the cache key for a window: the SHA-256 of its UTF-8
// bytes as lowercase hex. Identical windows share one key byte-for-byte.
func Fingerprint(window string) string {
	sum := sha256.Sum256([]byte(window))
	return hex.EncodeToString(sum[:])
}

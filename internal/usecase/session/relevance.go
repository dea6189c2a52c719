package session

import (
	"strings"
	"unicode"

	"github.com/johnquangdev/clinical-scribe/internal/domain/entities"
)

// clinicalTerms are English tokens that make a batch worth sending for
// extraction. Digits (ages, doses, durations) and non-Latin script also
// count, since consultations are often held in Hindi.
var clinicalTerms = []string{
	"pain", "ache", "fever", "cough", "cold", "vomit", "nausea", "diarr", "bleed",
	"swell", "rash", "itch", "dizz", "breath", "chest", "head", "stomach", "throat",
	"weak", "tired", "sleep", "appetite", "weight", "sugar", "pressure", "bp",
	"tablet", "medicine", "dose", "mg", "ml", "syrup", "injection", "inhaler",
	"test", "scan", "x-ray", "xray", "blood", "urine", "report", "allerg",
	"days", "weeks", "months", "since", "years", "old", "age", "name",
	"diagnos", "infection", "diabet", "asthma", "pregnan", "period", "burn",
	"doctor", "patient", "take", "avoid", "rest", "drink", "eat",
}

// IsRelevant reports whether any utterance in the batch carries a token that
// could inform the clinical record.
func IsRelevant(batch []entities.Utterance) bool {
	for _, u := range batch {
		if relevantText(u.Text) {
			return true
		}
	}
	return false
}

func relevantText(text string) bool {
	lower := strings.ToLower(text)
	for _, r := range lower {
		if unicode.IsDigit(r) || (r > unicode.MaxASCII && unicode.IsLetter(r)) {
			return true
		}
	}
	for _, term := range clinicalTerms {
		if strings.Contains(lower, term) {
			return true
		}
	}
	return false
}

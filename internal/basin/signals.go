package basin

import "strings"

// agreementPhrases is a small lexicon of agreement and hedging markers
// used as a sycophancy proxy. Matching is per lowercase token or bigram.
var agreementPhrases = []string{
	"yes", "agreed", "agree", "exactly", "absolutely", "indeed",
	"right", "certainly", "definitely", "of course", "well said",
	"good point", "i think", "perhaps", "maybe", "sort of", "kind of",
}

// Signals are the lightweight textual features feeding classification
// alongside the metrics snapshot.
type Signals struct {
	QuestionDensity  float64 // question marks per sentence
	AgreementDensity float64 // agreement/hedge hits per token
	Overlap          float64 // bigram Jaccard overlap with the prior turn
}

// ExtractSignals computes the textual signals for text, with prev being
// the prior turn's text (empty for the first turn).
func ExtractSignals(text, prev string) Signals {
	return Signals{
		QuestionDensity:  questionDensity(text),
		AgreementDensity: agreementDensity(text),
		Overlap:          bigramJaccard(tokenize(text), tokenize(prev)),
	}
}

// tokenize splits text into lowercase word tokens. Word characters are
// letters, digits, and underscores.
func tokenize(s string) []string {
	words := make([]string, 0)
	var current strings.Builder
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			current.WriteRune(r)
		} else if current.Len() > 0 {
			words = append(words, current.String())
			current.Reset()
		}
	}
	if current.Len() > 0 {
		words = append(words, current.String())
	}
	return words
}

// questionDensity is question marks over sentence terminators.
func questionDensity(text string) float64 {
	questions, sentences := 0, 0
	for _, r := range text {
		switch r {
		case '?':
			questions++
			sentences++
		case '.', '!':
			sentences++
		}
	}
	if sentences == 0 {
		if questions > 0 {
			return 1
		}
		return 0
	}
	return float64(questions) / float64(sentences)
}

// agreementDensity counts lexicon hits per token.
func agreementDensity(text string) float64 {
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return 0
	}
	joined := " " + strings.Join(tokens, " ") + " "
	hits := 0
	for _, p := range agreementPhrases {
		hits += strings.Count(joined, " "+p+" ")
	}
	return float64(hits) / float64(len(tokens))
}

// bigramJaccard computes the Jaccard index over token bigrams, the
// inquiry-versus-mimicry proxy against the prior turn.
func bigramJaccard(a, b []string) float64 {
	ba, bb := bigrams(a), bigrams(b)
	if len(ba) == 0 || len(bb) == 0 {
		return 0
	}
	intersection := 0
	for g := range ba {
		if bb[g] {
			intersection++
		}
	}
	union := len(ba) + len(bb) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func bigrams(tokens []string) map[string]bool {
	out := make(map[string]bool)
	for i := 1; i < len(tokens); i++ {
		out[tokens[i-1]+" "+tokens[i]] = true
	}
	return out
}

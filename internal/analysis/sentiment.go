package analysis

import (
	"math"
	"strings"
	"unicode"

	"github.com/brandradar/brandradar/internal/models"
	"github.com/sirupsen/logrus"
)

// Label thresholds are exclusive: exactly 0.1 or -0.1 is neutral.
const (
	positiveThreshold = 0.1
	negativeThreshold = -0.1
)

// SentimentScorer maps free text to a sentiment label and a polarity in [-1, 1].
// Implementations must not panic and fall back to (neutral, 0) on failure.
type SentimentScorer interface {
	Score(text string) (models.SentimentLabel, float64)
}

// LabelFor derives the sentiment label from a polarity value.
func LabelFor(polarity float64) models.SentimentLabel {
	switch {
	case polarity > positiveThreshold:
		return models.SentimentPositive
	case polarity < negativeThreshold:
		return models.SentimentNegative
	default:
		return models.SentimentNeutral
	}
}

// LexiconScorer estimates polarity from an opinion lexicon with simple
// intensifier and negation handling.
type LexiconScorer struct {
	lexicon      map[string]float64
	intensifiers map[string]float64
	negators     map[string]bool
}

// Ensure LexiconScorer implements SentimentScorer
var _ SentimentScorer = (*LexiconScorer)(nil)

// NewLexiconScorer creates a scorer backed by the built-in lexicon
func NewLexiconScorer() *LexiconScorer {
	return &LexiconScorer{
		lexicon:      defaultLexicon,
		intensifiers: defaultIntensifiers,
		negators:     defaultNegators,
	}
}

// Score returns the label and polarity for text.
func (s *LexiconScorer) Score(text string) (label models.SentimentLabel, polarity float64) {
	defer func() {
		if r := recover(); r != nil {
			logrus.Warnf("Sentiment analysis failed, falling back to neutral: %v", r)
			label, polarity = models.SentimentNeutral, 0
		}
	}()

	polarity = s.polarity(text)
	if math.IsNaN(polarity) || math.IsInf(polarity, 0) {
		return models.SentimentNeutral, 0
	}
	return LabelFor(polarity), polarity
}

func (s *LexiconScorer) polarity(text string) float64 {
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return 0
	}

	var total float64
	hits := 0
	for i, tok := range tokens {
		value, ok := s.lexicon[tok]
		if !ok {
			continue
		}

		// look back a few tokens for modifiers
		for j := i - 1; j >= 0 && j >= i-3; j-- {
			prev := tokens[j]
			if s.negators[prev] {
				value *= -0.5
				break
			}
			if boost, ok := s.intensifiers[prev]; ok && j == i-1 {
				value *= boost
			}
		}

		total += clamp(value)
		hits++
	}

	if hits == 0 {
		return 0
	}
	return clamp(total / float64(hits))
}

func clamp(v float64) float64 {
	return math.Max(-1, math.Min(1, v))
}

// tokenize lowercases text and splits it into words, keeping inner apostrophes
// so that contractions such as "isn't" survive as negators.
func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && r != '\''
	})

	tokens := fields[:0]
	for _, field := range fields {
		if tok := strings.Trim(field, "'"); tok != "" {
			tokens = append(tokens, tok)
		}
	}
	return tokens
}

var defaultNegators = map[string]bool{
	"not": true, "no": true, "never": true, "neither": true, "nor": true, "without": true,
	"isn't": true, "wasn't": true, "aren't": true, "don't": true, "doesn't": true, "didn't": true,
	"can't": true, "cannot": true, "won't": true, "shouldn't": true, "hardly": true,
}

var defaultIntensifiers = map[string]float64{
	"very": 1.3, "really": 1.3, "extremely": 1.5, "incredibly": 1.5, "highly": 1.3,
	"super": 1.3, "so": 1.2, "totally": 1.3, "absolutely": 1.4, "slightly": 0.6, "somewhat": 0.7,
}

var defaultLexicon = map[string]float64{
	// positive
	"good": 0.7, "great": 0.8, "excellent": 1.0, "amazing": 0.6, "awesome": 1.0, "fantastic": 0.4,
	"love": 0.5, "loved": 0.7, "loves": 0.5, "like": 0.2, "best": 1.0, "better": 0.5, "nice": 0.6,
	"happy": 0.8, "impressive": 1.0, "innovative": 0.5, "success": 0.3, "successful": 0.75,
	"win": 0.8, "wins": 0.8, "winning": 0.5, "strong": 0.43, "growth": 0.2, "gain": 0.3, "gains": 0.3,
	"rise": 0.2, "rises": 0.2, "soar": 0.6, "soars": 0.6, "surge": 0.3, "record": 0.2, "beat": 0.3,
	"beats": 0.3, "profit": 0.4, "profitable": 0.6, "boost": 0.4, "improve": 0.4, "improved": 0.5,
	"popular": 0.6, "perfect": 1.0, "brilliant": 0.9, "wonderful": 1.0, "positive": 0.23,
	"helpful": 0.5, "reliable": 0.5, "easy": 0.43, "fast": 0.2, "exciting": 0.3, "celebrate": 0.5,
	"praise": 0.6, "praised": 0.6, "upgrade": 0.3, "breakthrough": 0.6, "outstanding": 0.9,
	"recommend": 0.4, "leading": 0.3, "favorite": 0.5, "thrilled": 0.7, "delight": 0.8, "fine": 0.4,
	// negative
	"bad": -0.7, "terrible": -1.0, "awful": -1.0, "horrible": -1.0, "worst": -1.0, "worse": -0.4,
	"hate": -0.8, "hated": -0.9, "poor": -0.4, "weak": -0.38, "fail": -0.5, "fails": -0.5,
	"failed": -0.5, "failure": -0.6, "broken": -0.4, "bug": -0.3, "bugs": -0.3, "problem": -0.3,
	"problems": -0.3, "issue": -0.2, "issues": -0.2, "crash": -0.6, "crashes": -0.6, "lawsuit": -0.5,
	"sue": -0.4, "sued": -0.5, "fraud": -0.8, "scandal": -0.7, "recall": -0.4, "recalls": -0.4,
	"decline": -0.3, "declines": -0.3, "drop": -0.3, "drops": -0.3, "fall": -0.2, "falls": -0.3,
	"plunge": -0.6, "plunges": -0.6, "loss": -0.4, "losses": -0.4, "layoffs": -0.5, "cut": -0.2,
	"cuts": -0.2, "angry": -0.5, "disappointing": -0.6, "disappointed": -0.75, "sad": -0.5,
	"slow": -0.3, "expensive": -0.5, "outage": -0.6, "breach": -0.6, "hack": -0.4, "hacked": -0.6,
	"risk": -0.2, "risky": -0.5, "concern": -0.2, "concerns": -0.2, "controversy": -0.5,
	"criticism": -0.4, "criticized": -0.5, "boycott": -0.6, "fined": -0.5,
	"investigation": -0.3, "dangerous": -0.6, "unsafe": -0.6, "negative": -0.3, "miss": -0.3,
	"misses": -0.3, "struggle": -0.4, "struggles": -0.4, "delay": -0.3, "delayed": -0.3,
}

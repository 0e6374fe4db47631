package analysis

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/brandradar/brandradar/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLexiconScorer_Score(t *testing.T) {
	scorer := NewLexiconScorer()

	tests := []struct {
		name     string
		content  string
		expected models.SentimentLabel
	}{
		{
			name:     "Positive content",
			content:  "This is a great product, I love it",
			expected: models.SentimentPositive,
		},
		{
			name:     "Negative content",
			content:  "Terrible service and awful support",
			expected: models.SentimentNegative,
		},
		{
			name:     "Neutral content",
			content:  "The company released its quarterly report today",
			expected: models.SentimentNeutral,
		},
		{
			name:     "Negated positive",
			content:  "The new model is not good",
			expected: models.SentimentNegative,
		},
		{
			name:     "Empty input",
			content:  "",
			expected: models.SentimentNeutral,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			label, polarity := scorer.Score(tt.content)
			assert.Equal(t, tt.expected, label)
			assert.Equal(t, LabelFor(polarity), label)
		})
	}
}

func TestLexiconScorer_IntensifierIsClamped(t *testing.T) {
	_, polarity := NewLexiconScorer().Score("extremely excellent")
	assert.Equal(t, 1.0, polarity)
}

func TestLexiconScorer_QuotedWords(t *testing.T) {
	scorer := NewLexiconScorer()

	label, polarity := scorer.Score("'great'")
	assert.Equal(t, models.SentimentPositive, label)
	assert.Equal(t, 0.8, polarity)

	label, polarity = scorer.Score("the analysts' view: bad'")
	assert.Equal(t, models.SentimentNegative, label)
	assert.Equal(t, -0.7, polarity)

	assert.Equal(t, []string{"isn't", "good"}, tokenize("'isn't' good"))
}

func TestLexiconScorer_NeverFailsOnArbitraryInput(t *testing.T) {
	scorer := NewLexiconScorer()
	rng := rand.New(rand.NewSource(42))

	inputs := []string{"", "   ", "\x00\xff\xfe", strings.Repeat("bad ", 10000), "🙂🙃 good?!"}
	for i := 0; i < 200; i++ {
		buf := make([]byte, rng.Intn(64))
		rng.Read(buf)
		inputs = append(inputs, string(buf))
	}

	for _, in := range inputs {
		label, polarity := scorer.Score(in)
		assert.True(t, label.Valid(), "label %q for input %q", label, in)
		assert.GreaterOrEqual(t, polarity, -1.0)
		assert.LessOrEqual(t, polarity, 1.0)
	}
}

func TestLexiconScorer_RecoversFromPanic(t *testing.T) {
	label, polarity := (*LexiconScorer)(nil).Score("good")
	assert.Equal(t, models.SentimentNeutral, label)
	assert.Equal(t, 0.0, polarity)

	// zero value has no lexicon
	label, polarity = (&LexiconScorer{}).Score("good")
	assert.Equal(t, models.SentimentNeutral, label)
	assert.Equal(t, 0.0, polarity)
}

func TestLabelFor_Thresholds(t *testing.T) {
	tests := []struct {
		polarity float64
		expected models.SentimentLabel
	}{
		{polarity: 0.1, expected: models.SentimentNeutral},
		{polarity: -0.1, expected: models.SentimentNeutral},
		{polarity: 0, expected: models.SentimentNeutral},
		{polarity: 0.1001, expected: models.SentimentPositive},
		{polarity: -0.1001, expected: models.SentimentNegative},
		{polarity: 1, expected: models.SentimentPositive},
		{polarity: -1, expected: models.SentimentNegative},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, LabelFor(tt.polarity), "polarity %v", tt.polarity)
	}
}

func TestTopicExtractor_Extract(t *testing.T) {
	extractor := NewTopicExtractor()

	tests := []struct {
		name     string
		text     string
		expected string
	}{
		{name: "Only stop words", text: "The and of is it to", expected: GeneralTopic},
		{name: "Empty", text: "", expected: GeneralTopic},
		{name: "Short tokens dropped", text: "ai ai ai robot", expected: "robot"},
		{name: "Short tokens counted in characters", text: "ça ça ça voiture", expected: "voiture"},
		{name: "Most frequent wins", text: "Apple's iPhone sales: iPhone demand", expected: "iphone"},
		{name: "Tie goes to first seen", text: "Tesla battery Tesla battery", expected: "tesla"},
		{name: "Digits and punctuation stripped", text: "2024!!! 123 -- ...", expected: GeneralTopic},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, extractor.Extract(tt.text))
		})
	}
}

func TestTopicExtractor_ExtractTopics(t *testing.T) {
	extractor := NewTopicExtractor()

	topics := extractor.ExtractTopics("battery battery tesla factory factory factory", 10)
	assert.Equal(t, []string{"factory", "battery", "tesla"}, topics)

	topics = extractor.ExtractTopics("one two three four five six seven eight", 10)
	assert.Len(t, topics, MaxTopics)
	assert.Equal(t, "one", topics[0])

	assert.Equal(t, []string{GeneralTopic}, extractor.ExtractTopics("the a an", 3))
	assert.Nil(t, extractor.ExtractTopics("tesla", 0))
}

func TestBrandMatcher_Match(t *testing.T) {
	matcher := NewBrandMatcher()
	apple := models.Brand{ID: 1, Name: "Apple", Keywords: []string{"iphone", "tim cook"}}
	tesla := models.Brand{ID: 2, Name: "Tesla", Keywords: []string{"tesla", "elon musk"}}
	brands := []models.Brand{apple, tesla}

	tests := []struct {
		name    string
		text    string
		brands  []models.Brand
		wantID  int64
		wantHit bool
	}{
		{name: "Keyword match on later brand", text: "Tesla stock rises", brands: brands, wantID: 2, wantHit: true},
		{name: "Case insensitive keyword", text: "ELON MUSK speaks", brands: brands, wantID: 2, wantHit: true},
		{name: "First brand wins", text: "Tim Cook and Elon Musk meet", brands: brands, wantID: 1, wantHit: true},
		{name: "Order matters", text: "Tim Cook and Elon Musk meet", brands: []models.Brand{tesla, apple}, wantID: 2, wantHit: true},
		{name: "Name substring", text: "applesauce recipes", brands: brands, wantID: 1, wantHit: true},
		{name: "No match", text: "Weather is sunny", brands: brands, wantHit: false},
		{name: "Empty text", text: "", brands: brands, wantHit: false},
		{name: "No brands", text: "Tesla", brands: nil, wantHit: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			brand, ok := matcher.Match(tt.text, tt.brands)
			require.Equal(t, tt.wantHit, ok)
			if tt.wantHit {
				assert.Equal(t, tt.wantID, brand.ID)
			}
		})
	}
}

func TestBrandMatcher_BlankKeywordsNeverMatch(t *testing.T) {
	brand := models.Brand{ID: 1, Name: "Zeta", Keywords: []string{"", "  "}}
	_, ok := NewBrandMatcher().Match("completely unrelated content", []models.Brand{brand})
	assert.False(t, ok)
}

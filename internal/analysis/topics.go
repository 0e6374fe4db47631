package analysis

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// GeneralTopic is returned when no token survives filtering
const GeneralTopic = "general"

// MaxTopics caps the multi-topic variant
const MaxTopics = 5

// TopicExtractor picks short topic labels by token frequency. The result is
// a heuristic label, not a topic model.
type TopicExtractor struct {
	stopWords map[string]bool
}

// NewTopicExtractor creates an extractor using the built-in stop-word set
func NewTopicExtractor() *TopicExtractor {
	return &TopicExtractor{stopWords: defaultStopWords}
}

// Extract returns the most frequent significant token, ties going to the
// token seen first.
func (e *TopicExtractor) Extract(text string) string {
	topics := e.ExtractTopics(text, 1)
	if len(topics) == 0 {
		return GeneralTopic
	}
	return topics[0]
}

// ExtractTopics returns up to n (at most MaxTopics) tokens ordered by
// frequency then first occurrence. It returns ["general"] when nothing survives.
func (e *TopicExtractor) ExtractTopics(text string, n int) []string {
	if n <= 0 {
		return nil
	}
	if n > MaxTopics {
		n = MaxTopics
	}

	counts := make(map[string]int)
	var order []string
	for _, tok := range strings.Fields(normalize(text)) {
		if utf8.RuneCountInString(tok) <= 2 || e.stopWords[tok] {
			continue
		}
		if counts[tok] == 0 {
			order = append(order, tok)
		}
		counts[tok]++
	}

	if len(order) == 0 {
		return []string{GeneralTopic}
	}

	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})

	if len(order) > n {
		order = order[:n]
	}
	return order
}

// normalize lowercases text and drops everything except letters and whitespace.
func normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

var defaultStopWords = func() map[string]bool {
	words := []string{
		"the", "a", "an", "and", "or", "but", "in", "on", "at", "to", "for", "of", "with", "by",
		"is", "are", "was", "were", "be", "been", "being", "have", "has", "had", "do", "does", "did",
		"will", "would", "could", "should", "may", "might", "must", "can", "this", "that", "these",
		"those", "i", "you", "he", "she", "it", "we", "they", "me", "him", "her", "us", "them",
		"my", "your", "his", "its", "our", "their", "from", "about", "into", "over", "after",
		"before", "than", "then", "there", "here", "when", "where", "what", "which", "who", "whom",
		"why", "how", "all", "any", "both", "each", "more", "most", "other", "some", "such", "not",
		"only", "own", "same", "very", "just", "also", "now", "new", "says", "said", "out", "up",
		"down", "off", "again", "further", "once", "because", "while", "during", "through", "until",
		"against", "between", "under", "above", "below", "too", "nor", "so", "if", "no", "yes",
		"chars", "amp", "nbsp", "com", "www", "http", "https",
	}
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}()

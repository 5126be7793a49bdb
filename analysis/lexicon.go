package analysis

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Lexicon holds the term lists the metrics are computed with
type Lexicon struct {
	Positive  []string `yaml:"positive"`
	Negative  []string `yaml:"negative"`
	Topics    []string `yaml:"topics"`
	StopWords []string `yaml:"stop_words"`
}

// DefaultLexicon returns the built-in term lists
func DefaultLexicon() Lexicon {
	return Lexicon{
		Positive: []string{
			"good", "great", "excellent", "amazing", "love", "awesome", "fantastic",
			"wonderful", "perfect", "best", "happy", "excited", "success", "achievement",
			"growth", "opportunity", "helpful", "solved", "working", "easy", "smooth",
			"recommend", "impressed", "satisfied", "brilliant", "outstanding",
		},
		Negative: []string{
			"bad", "terrible", "awful", "hate", "worst", "horrible", "annoying",
			"frustrated", "angry", "disappointed", "useless", "broken", "failed",
			"problem", "issue", "bug", "error", "difficult", "hard", "struggle",
			"reject", "fired", "unemployment", "stress", "worry", "concern",
		},
		Topics: []string{
			"javascript", "python", "java", "react", "nodejs", "angular", "vue",
			"aws", "azure", "docker", "kubernetes", "microservices", "api", "database",
			"frontend", "backend", "fullstack", "devops", "mobile", "android", "ios",
			"machine", "learning", "data", "science", "artificial", "intelligence",
			"startup", "company", "job", "interview", "salary", "career", "switch",
			"remote", "work", "team", "project", "experience", "skills", "coding",
			"programming", "development", "software", "engineering", "technical",
		},
		StopWords: []string{
			"the", "and", "for", "are", "but", "not", "you", "all", "can", "had",
			"her", "was", "one", "our", "out", "day", "get", "has", "him", "his",
			"how", "man", "new", "now", "old", "see", "two", "way", "who", "boy",
			"did", "its", "let", "put", "say", "she", "too", "use", "have", "this",
			"that", "with", "they", "will", "your", "from", "what", "were", "been",
			"their", "said", "each", "which", "there", "would", "make", "like",
			"into", "time", "very", "when", "come", "may", "take", "them", "year",
		},
	}
}

// LoadLexicon reads a YAML lexicon file. Lists missing from the file keep
// their built-in defaults. An empty path returns the defaults.
func LoadLexicon(path string) (Lexicon, error) {
	lexicon := DefaultLexicon()
	if path == "" {
		return lexicon, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return Lexicon{}, fmt.Errorf("failed to read lexicon file: %w", err)
	}

	var fileLexicon Lexicon
	if err := yaml.Unmarshal(raw, &fileLexicon); err != nil {
		return Lexicon{}, fmt.Errorf("failed to parse lexicon file: %w", err)
	}

	if len(fileLexicon.Positive) > 0 {
		lexicon.Positive = normalizeTerms(fileLexicon.Positive)
	}
	if len(fileLexicon.Negative) > 0 {
		lexicon.Negative = normalizeTerms(fileLexicon.Negative)
	}
	if len(fileLexicon.Topics) > 0 {
		lexicon.Topics = normalizeTerms(fileLexicon.Topics)
	}
	if len(fileLexicon.StopWords) > 0 {
		lexicon.StopWords = normalizeTerms(fileLexicon.StopWords)
	}

	return lexicon, nil
}

// terms are matched against lower-cased tokens
func normalizeTerms(terms []string) []string {
	out := make([]string, 0, len(terms))
	for _, term := range terms {
		term = strings.ToLower(strings.TrimSpace(term))
		if term != "" {
			out = append(out, term)
		}
	}
	return out
}

func toSet(terms []string) map[string]struct{} {
	set := make(map[string]struct{}, len(terms))
	for _, term := range terms {
		set[term] = struct{}{}
	}
	return set
}

package domain

import (
	"context"
	"fmt"
	"strings"
)

// ContentSource composes the question content for one paper set variant.
// Production deployments plug the question-bank pipeline in here; the core
// only requires that composition is deterministic for a given
// (vacancyID, setID) pair so stored digests stay meaningful.
type ContentSource interface {
	Compose(ctx context.Context, vacancyID, setID string) ([]byte, error)
}

// defaultQuestionCount matches the paper length used by the exam body.
const defaultQuestionCount = 100

// PlaceholderSource composes deterministic stand-in papers until the
// question bank is wired. Each variant gets a distinct question ordering
// derived from its label.
type PlaceholderSource struct {
	// Questions overrides the number of questions per paper when positive.
	Questions int
}

// Compose builds placeholder content for one set variant.
func (p PlaceholderSource) Compose(_ context.Context, vacancyID, setID string) ([]byte, error) {
	if !ValidLabel(setID) {
		return nil, ErrUnknownLabel
	}
	count := p.Questions
	if count <= 0 {
		count = defaultQuestionCount
	}

	var content strings.Builder
	fmt.Fprintf(&content, "VACANCY ID: %s\n", vacancyID)
	fmt.Fprintf(&content, "PAPER SET: %s\n", setID)
	fmt.Fprintf(&content, "TOTAL QUESTIONS: %d\n", count)
	content.WriteString("DURATION: 3 hours\n")

	// Rotate the question order by the label index so every variant of the
	// same vacancy hashes differently.
	offset := strings.Index("ABCDE", setID)
	for i := range count {
		number := (i+offset*count/len(labels))%count + 1
		fmt.Fprintf(&content, "Q%d: Question %d for set %s\n", i+1, number, setID)
	}
	return []byte(content.String()), nil
}

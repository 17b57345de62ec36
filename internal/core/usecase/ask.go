package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/GoBeromsu/My-awesome-RA/internal/core/domain"
	"github.com/GoBeromsu/My-awesome-RA/internal/core/ports"
)

type AskUseCase struct {
	searcher  ports.EvidenceSearcher
	generator ports.AnswerGenerator
}

func NewAskUseCase(searcher ports.EvidenceSearcher, generator ports.AnswerGenerator) *AskUseCase {
	return &AskUseCase{
		searcher:  searcher,
		generator: generator,
	}
}

func (uc *AskUseCase) Answer(ctx context.Context, question string, limit int) (*domain.Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "ask", errors.New("question is required"))
	}
	if limit <= 0 {
		limit = 5
	}

	resp, err := uc.searcher.Search(ctx, question, limit)
	if err != nil {
		return nil, fmt.Errorf("search evidence: %w", err)
	}

	answerText, err := uc.generator.GenerateAnswer(ctx, question, resp.Results)
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}

	return &domain.Answer{
		Text:    answerText,
		Sources: resp.Results,
	}, nil
}

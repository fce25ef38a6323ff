package pdfquiz

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DefaultMaxSourceChars caps how much document text is sent to the model
const DefaultMaxSourceChars = 60000

// Generator produces the questions for a document. It is the controller's view
// of the extraction+generation pipeline.
type Generator interface {
	Generate(ctx context.Context, doc Document) ([]Question, error)
}

// QuestionSource is the generation collaborator
type QuestionSource interface {
	GenerateQuestions(ctx context.Context, req GenerationRequest, logger *LLMLogger) ([]Question, error)
}

// GeneratorOptions tunes the pipeline
type GeneratorOptions struct {
	NumQuestions   int
	MaxSourceChars int
	LLMLogDir      string
	// Timeout bounds the whole pipeline; zero means no deadline.
	Timeout time.Duration
}

// QuizGenerator chains text extraction and question generation
type QuizGenerator struct {
	extractor TextExtractor
	maker     QuestionSource
	opts      GeneratorOptions
}

// NewQuizGenerator creates a new quiz generator
func NewQuizGenerator(extractor TextExtractor, maker QuestionSource, opts GeneratorOptions) *QuizGenerator {
	if opts.NumQuestions <= 0 {
		opts.NumQuestions = DefaultNumQuestions
	}
	if opts.MaxSourceChars == 0 {
		opts.MaxSourceChars = DefaultMaxSourceChars
	}
	return &QuizGenerator{extractor: extractor, maker: maker, opts: opts}
}

// Generate extracts the document text and turns it into questions.
func (qg *QuizGenerator) Generate(ctx context.Context, doc Document) ([]Question, error) {
	if qg.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, qg.opts.Timeout)
		defer cancel()
	}

	Logger().Infof("Starting PDF processing for %s (%d bytes)", doc.Name, doc.Size())

	text, err := qg.extractor.ExtractText(ctx, doc)
	if err != nil {
		return nil, err
	}
	Logger().Infof("PDF text extracted, length: %d", len(text))

	if qg.opts.MaxSourceChars > 0 && len(text) > qg.opts.MaxSourceChars {
		VerboseLog("Truncating source text from %d to %d characters", len(text), qg.opts.MaxSourceChars)
		text = truncateUTF8(text, qg.opts.MaxSourceChars)
	}

	req := GenerationRequest{
		Title:          doc.Name,
		NumQuestions:   qg.opts.NumQuestions,
		SourceMaterial: text,
	}

	logger, err := NewLLMLogger(qg.opts.LLMLogDir, uuid.NewString(), req)
	if err != nil {
		// continue without the transcript
		Logger().Warnf("Failed to create LLM logger: %v", err)
	} else {
		defer logger.Close()
	}

	questions, err := qg.maker.GenerateQuestions(ctx, req, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to generate questions: %w", err)
	}
	return questions, nil
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !isRuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}

package pdfquiz

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const (
	DefaultBaseURL = "https://openrouter.ai/api/v1"
	DefaultModel   = "deepseek/deepseek-r1-0528:free"
	DefaultTitle   = "PDF Quiz Generator"
)

// MakerConfig configures the question generation client
type MakerConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	Referer    string // sent as HTTP-Referer
	Title      string // sent as X-Title
	HTTPClient *http.Client
}

// QuestionMaker generates questions with a chat completion model
type QuestionMaker struct {
	client *openai.Client
	model  string
}

// NewQuestionMaker creates a new question maker. A missing API key is a configuration error.
func NewQuestionMaker(cfg MakerConfig) (*QuestionMaker, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, newError(KindConfigurationMissing, nil, "an API key is required to generate questions")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Title == "" {
		cfg.Title = DefaultTitle
	}

	base := http.DefaultTransport
	httpClient := &http.Client{}
	if cfg.HTTPClient != nil {
		*httpClient = *cfg.HTTPClient
		if cfg.HTTPClient.Transport != nil {
			base = cfg.HTTPClient.Transport
		}
	}
	httpClient.Transport = &headerTransport{
		base: base,
		headers: map[string]string{
			"HTTP-Referer": cfg.Referer,
			"X-Title":      cfg.Title,
		},
	}

	config := openai.DefaultConfig(cfg.APIKey)
	config.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	config.HTTPClient = httpClient

	return &QuestionMaker{
		client: openai.NewClientWithConfig(config),
		model:  cfg.Model,
	}, nil
}

// headerTransport adds the attribution headers the generation service expects
type headerTransport struct {
	base    http.RoundTripper
	headers map[string]string
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for k, v := range t.headers {
		if v != "" {
			req.Header.Set(k, v)
		}
	}
	return t.base.RoundTrip(req)
}

// GenerateQuestions asks the model for req.NumQuestions questions about req.SourceMaterial
func (qm *QuestionMaker) GenerateQuestions(ctx context.Context, req GenerationRequest, logger *LLMLogger) ([]Question, error) {
	if req.NumQuestions <= 0 {
		req.NumQuestions = DefaultNumQuestions
	}
	Logger().Infof("Generating %d questions for %q (%d characters of text)", req.NumQuestions, req.Title, len(req.SourceMaterial))

	prompt := qm.buildPrompt(req)
	logger.LogLLMRequest("QuestionMaker", prompt)

	resp, err := qm.client.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{
			Model: qm.model,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:    openai.ChatMessageRoleUser,
					Content: prompt,
				},
			},
		},
	)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, serviceError(err)
	}

	if len(resp.Choices) == 0 {
		return nil, newError(KindMalformedResponse, nil, "no response from the question service")
	}

	content := resp.Choices[0].Message.Content
	logger.LogLLMResponse("QuestionMaker", content)

	questions, err := ParseQuestions(content, logger)
	if err != nil {
		return nil, err
	}

	Logger().Infof("Generated %d questions", len(questions))
	return questions, nil
}

func serviceError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return newError(KindServiceUnavailable, err, "API request failed: %d", apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return newError(KindServiceUnavailable, err, "API request failed: %d", reqErr.HTTPStatusCode)
	}
	return newError(KindServiceUnavailable, err, "the question service could not be reached")
}

func (qm *QuestionMaker) buildPrompt(req GenerationRequest) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Generate %d multiple choice questions based on the following text. ", req.NumQuestions))
	sb.WriteString(fmt.Sprintf("Each question should have %d options and one correct answer. ", OptionsPerQuestion))
	sb.WriteString("Format the response as a JSON array with this structure:\n")
	sb.WriteString("[\n")
	sb.WriteString("  {\n")
	sb.WriteString("    \"id\": 1,\n")
	sb.WriteString("    \"question\": \"Question text here?\",\n")
	sb.WriteString("    \"options\": [\"Option A\", \"Option B\", \"Option C\", \"Option D\"],\n")
	sb.WriteString("    \"correctAnswer\": 0\n")
	sb.WriteString("  }\n")
	sb.WriteString("]\n\n")

	sb.WriteString("Text content:\n")
	sb.WriteString(req.SourceMaterial)
	sb.WriteString("\n\n")

	sb.WriteString("Return only the JSON array, no additional text.")

	return sb.String()
}

// wireQuestion mirrors the response schema; pointers detect missing fields
type wireQuestion struct {
	ID            *int       `json:"id"`
	Question      *string    `json:"question"`
	Options       *[]*string `json:"options"`
	CorrectAnswer *int       `json:"correctAnswer"`
}

// ParseQuestions decodes a response body that must be exactly a JSON array of
// questions. Any deviation is a MalformedResponse error. Accepted questions are
// numbered 1..N in the order received.
func ParseQuestions(content string, logger *LLMLogger) ([]Question, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(strings.TrimSpace(content))))
	dec.DisallowUnknownFields()

	var wire []wireQuestion
	if err := dec.Decode(&wire); err != nil {
		return nil, newError(KindMalformedResponse, err, "invalid response format from the question service")
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, newError(KindMalformedResponse, nil, "unexpected data after the question array")
	}
	if len(wire) == 0 {
		return nil, newError(KindMalformedResponse, nil, "the question service returned no questions")
	}

	seen := make(map[int]bool, len(wire))
	questions := make([]Question, 0, len(wire))
	for i, w := range wire {
		q, err := w.toQuestion()
		if err == nil && seen[q.ID] {
			err = fmt.Errorf("duplicate id %d", q.ID)
		}
		logger.LogQuestionResult(i+1, err)
		if err != nil {
			return nil, newError(KindMalformedResponse, err, "question %d is malformed", i+1)
		}
		seen[q.ID] = true
		questions = append(questions, q)
	}

	// ids are renumbered 1..N in response order
	for i := range questions {
		if questions[i].ID != i+1 {
			VerboseLog("Renumbering question id %d to %d", questions[i].ID, i+1)
			questions[i].ID = i + 1
		}
	}
	return questions, nil
}

func (w wireQuestion) toQuestion() (Question, error) {
	switch {
	case w.ID == nil:
		return Question{}, errors.New("missing id")
	case w.Question == nil || strings.TrimSpace(*w.Question) == "":
		return Question{}, errors.New("missing question text")
	case w.Options == nil:
		return Question{}, errors.New("missing options")
	case len(*w.Options) != OptionsPerQuestion:
		return Question{}, fmt.Errorf("expected %d options, got %d", OptionsPerQuestion, len(*w.Options))
	case w.CorrectAnswer == nil:
		return Question{}, errors.New("missing correctAnswer")
	case *w.CorrectAnswer < 0 || *w.CorrectAnswer >= OptionsPerQuestion:
		return Question{}, fmt.Errorf("correctAnswer %d out of range", *w.CorrectAnswer)
	}
	options := make([]string, 0, OptionsPerQuestion)
	for i, opt := range *w.Options {
		if opt == nil {
			return Question{}, fmt.Errorf("option %d is null", i+1)
		}
		options = append(options, *opt)
	}
	return Question{
		ID:            *w.ID,
		Text:          *w.Question,
		Options:       options,
		CorrectAnswer: *w.CorrectAnswer,
	}, nil
}

package pdfquiz

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	openai "github.com/sashabaranov/go-openai"
)

const validQuestionsJSON = `[
  {"id": 1, "question": "What is 2+2?", "options": ["3", "4", "5", "6"], "correctAnswer": 1},
  {"id": 2, "question": "Capital of France?", "options": ["Paris", "Rome", "Berlin", "Madrid"], "correctAnswer": 0}
]`

// chatServer answers every chat completion with content and records the last request.
func chatServer(t *testing.T, content string, last *http.Request, lastBody *openai.ChatCompletionRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if last != nil {
			*last = *r.Clone(context.Background())
		}
		if lastBody != nil {
			if err := json.NewDecoder(r.Body).Decode(lastBody); err != nil {
				t.Errorf("decode request: %v", err)
			}
		}
		resp := openai.ChatCompletionResponse{
			ID:     "chatcmpl-test",
			Object: "chat.completion",
			Model:  "test-model",
			Choices: []openai.ChatCompletionChoice{{
				Index: 0,
				Message: openai.ChatCompletionMessage{
					Role:    openai.ChatMessageRoleAssistant,
					Content: content,
				},
				FinishReason: openai.FinishReasonStop,
			}},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNewQuestionMakerRequiresKey(t *testing.T) {
	_, err := NewQuestionMaker(MakerConfig{APIKey: "  "})
	if KindOf(err) != KindConfigurationMissing {
		t.Fatalf("expected configuration missing, got %v", err)
	}
}

func TestGenerateQuestions(t *testing.T) {
	var req http.Request
	var body openai.ChatCompletionRequest
	srv := chatServer(t, validQuestionsJSON, &req, &body)

	qm, err := NewQuestionMaker(MakerConfig{
		APIKey:  "test-key",
		BaseURL: srv.URL + "/api/v1",
		Model:   "test-model",
		Referer: "http://localhost:8180",
		Title:   "Quiz Test",
	})
	if err != nil {
		t.Fatalf("new question maker: %v", err)
	}

	questions, err := qm.GenerateQuestions(context.Background(), GenerationRequest{
		Title:          "notes.pdf",
		NumQuestions:   2,
		SourceMaterial: "Paris is the capital of France.",
	}, nil)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(questions) != 2 || questions[1].Options[0] != "Paris" || questions[0].CorrectAnswer != 1 {
		t.Fatalf("unexpected questions: %+v", questions)
	}

	if req.URL.Path != "/api/v1/chat/completions" {
		t.Fatalf("unexpected path %s", req.URL.Path)
	}
	if got := req.Header.Get("Authorization"); got != "Bearer test-key" {
		t.Fatalf("unexpected authorization header %q", got)
	}
	if got := req.Header.Get("HTTP-Referer"); got != "http://localhost:8180" {
		t.Fatalf("unexpected referer header %q", got)
	}
	if got := req.Header.Get("X-Title"); got != "Quiz Test" {
		t.Fatalf("unexpected title header %q", got)
	}

	if body.Model != "test-model" || len(body.Messages) != 1 {
		t.Fatalf("unexpected request body: %+v", body)
	}
	prompt := body.Messages[0].Content
	if body.Messages[0].Role != openai.ChatMessageRoleUser {
		t.Fatalf("expected a single user message, got role %s", body.Messages[0].Role)
	}
	for _, want := range []string{"Generate 2 multiple choice questions", "Paris is the capital of France.", "Return only the JSON array"} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt is missing %q", want)
		}
	}
}

func TestGenerateQuestionsMalformedContent(t *testing.T) {
	srv := chatServer(t, "Here are your questions: []", nil, nil)
	qm, err := NewQuestionMaker(MakerConfig{APIKey: "k", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("new question maker: %v", err)
	}

	_, err = qm.GenerateQuestions(context.Background(), GenerationRequest{SourceMaterial: "text"}, nil)
	if KindOf(err) != KindMalformedResponse {
		t.Fatalf("expected malformed response, got %v", err)
	}
}

func TestGenerateQuestionsServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"upstream unavailable","type":"server_error"}}`))
	}))
	defer srv.Close()

	qm, err := NewQuestionMaker(MakerConfig{APIKey: "k", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("new question maker: %v", err)
	}
	_, err = qm.GenerateQuestions(context.Background(), GenerationRequest{SourceMaterial: "text"}, nil)
	if KindOf(err) != KindServiceUnavailable {
		t.Fatalf("expected service unavailable, got %v", err)
	}
}

func TestGenerateQuestionsUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	qm, err := NewQuestionMaker(MakerConfig{APIKey: "k", BaseURL: url})
	if err != nil {
		t.Fatalf("new question maker: %v", err)
	}
	_, err = qm.GenerateQuestions(context.Background(), GenerationRequest{SourceMaterial: "text"}, nil)
	if KindOf(err) != KindServiceUnavailable {
		t.Fatalf("expected service unavailable, got %v", err)
	}
}

func TestParseQuestions(t *testing.T) {
	questions, err := ParseQuestions("\n  "+validQuestionsJSON+"\n", nil)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(questions) != 2 || questions[0].ID != 1 || questions[0].Text != "What is 2+2?" {
		t.Fatalf("unexpected questions: %+v", questions)
	}
}

func TestParseQuestionsRejectsMalformed(t *testing.T) {
	cases := map[string]string{
		"not json":          "I cannot help with that.",
		"fenced":            "```json\n" + validQuestionsJSON + "\n```",
		"object":            `{"questions": []}`,
		"empty array":       `[]`,
		"trailing text":     validQuestionsJSON + " thanks!",
		"three options":     `[{"id":1,"question":"q","options":["a","b","c"],"correctAnswer":0}]`,
		"five options":      `[{"id":1,"question":"q","options":["a","b","c","d","e"],"correctAnswer":0}]`,
		"answer too high":   `[{"id":1,"question":"q","options":["a","b","c","d"],"correctAnswer":4}]`,
		"negative answer":   `[{"id":1,"question":"q","options":["a","b","c","d"],"correctAnswer":-1}]`,
		"missing answer":    `[{"id":1,"question":"q","options":["a","b","c","d"]}]`,
		"missing id":        `[{"question":"q","options":["a","b","c","d"],"correctAnswer":0}]`,
		"blank question":    `[{"id":1,"question":"  ","options":["a","b","c","d"],"correctAnswer":0}]`,
		"string answer":     `[{"id":1,"question":"q","options":["a","b","c","d"],"correctAnswer":"A"}]`,
		"unknown field":     `[{"id":1,"question":"q","options":["a","b","c","d"],"correctAnswer":0,"hint":"x"}]`,
		"duplicate ids":     `[{"id":1,"question":"q","options":["a","b","c","d"],"correctAnswer":0},{"id":1,"question":"r","options":["a","b","c","d"],"correctAnswer":1}]`,
		"one bad of many":   `[{"id":1,"question":"q","options":["a","b","c","d"],"correctAnswer":0},{"id":2,"question":"r","options":["a"],"correctAnswer":0}]`,
		"truncated payload": `[{"id":1,"question":"q","options":["a","b"`,
		"null option":       `[{"id":1,"question":"q","options":[null,"b","c","d"],"correctAnswer":0}]`,
		"null options":      `[{"id":1,"question":"q","options":null,"correctAnswer":0}]`,
	}
	for name, content := range cases {
		if _, err := ParseQuestions(content, nil); KindOf(err) != KindMalformedResponse {
			t.Fatalf("%s: expected malformed response, got %v", name, err)
		}
	}
}

func TestParseQuestionsRenumbersIDs(t *testing.T) {
	content := `[{"id":7,"question":"q","options":["a","b","c","d"],"correctAnswer":0},{"id":3,"question":"r","options":["a","b","c","d"],"correctAnswer":1}]`
	questions, err := ParseQuestions(content, nil)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if questions[0].ID != 1 || questions[1].ID != 2 || questions[1].Text != "r" {
		t.Fatalf("expected ids 1 and 2 in response order, got %+v", questions)
	}
}

func TestParseQuestionsNamesBadQuestion(t *testing.T) {
	content := `[{"id":1,"question":"q","options":["a","b","c","d"],"correctAnswer":0},{"id":2,"question":"r","options":["a","b","c","d"],"correctAnswer":9}]`
	_, err := ParseQuestions(content, nil)
	if got := Message(err); got != "question 2 is malformed" {
		t.Fatalf("unexpected message %q", got)
	}
}

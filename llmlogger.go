package pdfquiz

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LLMLogger records every generation exchange for one attempt. Entries go to the
// package logger and, when a directory is configured, to <dir>/<attempt>.log.
type LLMLogger struct {
	mu        sync.Mutex
	log       *zap.SugaredLogger
	file      *os.File
	attemptID string
}

// NewLLMLogger creates a logger for a single generation attempt
func NewLLMLogger(dir, attemptID string, req GenerationRequest) (*LLMLogger, error) {
	base := Logger()
	ll := &LLMLogger{attemptID: attemptID}

	if dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		file, err := os.Create(filepath.Join(dir, attemptID+".log"))
		if err != nil {
			return nil, fmt.Errorf("failed to create log file: %w", err)
		}
		fileCore := zapcore.NewCore(
			zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
			zapcore.AddSync(file),
			zapcore.DebugLevel,
		)
		tee := zapcore.NewTee(base.Desugar().Core(), fileCore)
		base = zap.New(tee).Sugar()
		ll.file = file
	}

	ll.log = base.With("attempt", attemptID)
	ll.log.Infow("generation started",
		"title", req.Title,
		"num_questions", req.NumQuestions,
		"source_chars", len(req.SourceMaterial),
	)
	return ll, nil
}

// LogLLMRequest logs an LLM request
func (ll *LLMLogger) LogLLMRequest(module, prompt string) {
	if ll == nil {
		return
	}
	ll.mu.Lock()
	defer ll.mu.Unlock()
	ll.log.Debugw("llm request", "module", module, "prompt", prompt)
}

// LogLLMResponse logs an LLM response
func (ll *LLMLogger) LogLLMResponse(module, response string) {
	if ll == nil {
		return
	}
	ll.mu.Lock()
	defer ll.mu.Unlock()
	ll.log.Debugw("llm response", "module", module, "response", response)
}

// LogQuestionResult logs the structural check of one generated question
func (ll *LLMLogger) LogQuestionResult(questionID int, err error) {
	if ll == nil {
		return
	}
	ll.mu.Lock()
	defer ll.mu.Unlock()
	if err != nil {
		ll.log.Warnw("question rejected", "question", questionID, "reason", err.Error())
		return
	}
	ll.log.Debugw("question accepted", "question", questionID)
}

// Close flushes and closes the attempt log
func (ll *LLMLogger) Close() error {
	if ll == nil {
		return nil
	}
	ll.mu.Lock()
	defer ll.mu.Unlock()

	ll.log.Infow("generation finished")
	_ = ll.log.Sync()
	if ll.file != nil {
		err := ll.file.Close()
		ll.file = nil
		return err
	}
	return nil
}

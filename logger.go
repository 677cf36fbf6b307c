package mealchat

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// TurnLogger records every completion call made on behalf of a conversation.
type TurnLogger interface {
	LogTurn(turn TurnLog) error
}

// NewTurnLogFilePath returns a file path based on a cleaned up provider and model name so logs from different models are easy to tell apart.
func NewTurnLogFilePath(dir, provider, model string) string {
	if dir == "" {
		dir = "./logs"
	}
	name := strings.ToLower(provider)
	if model != "" {
		name += "." + strings.ToLower(model)
	}
	return fmt.Sprintf("%s/%d.%s.json", dir, time.Now().Unix(), strings.NewReplacer(":", "_", "/", "_").Replace(name))
}

// TurnLog represents a single completion call.
type TurnLog struct {
	Turn      int64     `json:"turn"`
	Timestamp time.Time `json:"timestamp"`
	Operation string    `json:"operation"`
	Input     string    `json:"input,omitempty"`
	Output    any       `json:"output,omitempty"`
	LatencyMS int64     `json:"latency_ms"`
	Error     string    `json:"error,omitempty"`
}

// FileTurnLogger accumulates turns and writes them out on Flush.
type FileTurnLogger struct {
	mu     sync.Mutex
	turns  []TurnLog
	writer io.Writer
}

func NewFileTurnLogger(writer io.Writer) *FileTurnLogger {
	return &FileTurnLogger{
		turns:  make([]TurnLog, 0),
		writer: writer,
	}
}

// LogTurn buffers the turn; nothing is written until Flush.
func (l *FileTurnLogger) LogTurn(turn TurnLog) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.turns = append(l.turns, turn)
	return nil
}

func (l *FileTurnLogger) Flush() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.writer == nil {
		return nil
	}

	data, err := json.MarshalIndent(map[string]any{
		"conversation_log": map[string]any{
			"timestamp": time.Now(),
			"turns":     l.turns,
		},
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal turn log: %w", err)
	}

	if _, err := l.writer.Write(data); err != nil {
		return fmt.Errorf("failed to write turn log: %w", err)
	}

	l.turns = l.turns[:0]
	return nil
}

type NoOpTurnLogger struct{}

func NewNoOpTurnLogger() *NoOpTurnLogger {
	return &NoOpTurnLogger{}
}

func (NoOpTurnLogger) LogTurn(TurnLog) error {
	return nil
}

// StdoutTurnLogger writes each turn as a JSON line (Lambda/CloudWatch).
type StdoutTurnLogger struct {
	out io.Writer
}

func NewStdoutTurnLogger() *StdoutTurnLogger {
	return &StdoutTurnLogger{out: os.Stdout}
}

func (l *StdoutTurnLogger) LogTurn(turn TurnLog) error {
	data, err := json.Marshal(turn)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(l.out, string(data))
	return err
}

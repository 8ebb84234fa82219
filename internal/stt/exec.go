package stt

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"github.com/mattn/go-shellwords"
)

// execTranscriber shells out to a recognizer command (e.g. a whisper.cpp
// wrapper) that reads a JSON request on stdin and writes {"text": ...} on
// stdout. The mutex serializes runs: local recognizers own the accelerator.
type execTranscriber struct {
	cmd      []string
	language string
	mu       sync.Mutex
}

type execRequest struct {
	AudioBase64 string `json:"audio_base64"`
	Language    string `json:"language,omitempty"`
}

type execResponse struct {
	Text string `json:"text"`
}

func NewExecTranscriber(command, language string) (Transcriber, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse stt command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("stt command empty")
	}
	return &execTranscriber{cmd: args, language: language}, nil
}

func (e *execTranscriber) Transcribe(ctx context.Context, audio []byte) (string, error) {
	if len(audio) == 0 {
		return "", nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	input, err := json.Marshal(execRequest{
		AudioBase64: base64.StdEncoding.EncodeToString(audio),
		Language:    e.language,
	})
	if err != nil {
		return "", err
	}

	base := e.cmd[0]
	args := append([]string{}, e.cmd[1:]...)
	cmd := exec.CommandContext(ctx, base, args...)
	cmd.Stdin = bytes.NewReader(input)
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("stt exec command failed: %w", err)
	}

	var resp execResponse
	if err := json.Unmarshal(output, &resp); err != nil {
		return "", fmt.Errorf("decode stt exec response: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}

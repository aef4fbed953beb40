package backend

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"
)

// ChatChunk is one delta from a streaming chat completion.
type ChatChunk struct {
	Delta        string
	Done         bool
	FinishReason string
}

// ChatStream reads newline-delimited JSON chunks from a streaming chat
// response. It accumulates the full completion so usage can be accounted
// after the stream ends, including a stream the client abandoned partway.
type ChatStream struct {
	body      io.ReadCloser
	scanner   *bufio.Scanner
	messages  []Message
	estimator *TokenEstimator

	content         strings.Builder
	promptEvalCount int
	evalCount       int
	finished        bool
}

func newChatStream(body io.ReadCloser, messages []Message, estimator *TokenEstimator) *ChatStream {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	return &ChatStream{
		body:      body,
		scanner:   scanner,
		messages:  messages,
		estimator: estimator,
	}
}

// Recv returns the next chunk. The final chunk has Done set; after that, or
// after an error, the stream yields nothing more. io.EOF means the backend
// closed the stream without a done marker.
func (s *ChatStream) Recv() (*ChatChunk, error) {
	for {
		if s.finished {
			return nil, io.EOF
		}

		if !s.scanner.Scan() {
			s.finished = true
			if err := s.scanner.Err(); err != nil {
				return nil, err
			}
			return nil, io.EOF
		}

		line := s.scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var chunk ollamaChatChunk
		if err := json.Unmarshal(line, &chunk); err != nil {
			// Skip malformed lines the way a lenient NDJSON reader would
			continue
		}

		s.content.WriteString(chunk.Message.Content)

		if chunk.Done {
			s.finished = true
			s.promptEvalCount = chunk.PromptEvalCount
			s.evalCount = chunk.EvalCount

			reason := chunk.DoneReason
			if reason == "" {
				reason = "stop"
			}
			return &ChatChunk{Delta: chunk.Message.Content, Done: true, FinishReason: reason}, nil
		}

		return &ChatChunk{Delta: chunk.Message.Content}, nil
	}
}

// Content returns the completion text received so far.
func (s *ChatStream) Content() string {
	return s.content.String()
}

// Usage returns prompt and completion token counts for what was actually
// received, falling back to estimation when the backend reported none.
func (s *ChatStream) Usage() (promptTokens, completionTokens int) {
	promptTokens = s.promptEvalCount
	completionTokens = s.evalCount

	if promptTokens == 0 {
		promptTokens = s.estimator.EstimateMessages(s.messages)
	}
	if completionTokens == 0 && s.content.Len() > 0 {
		completionTokens = s.estimator.Estimate(s.content.String())
	}
	return promptTokens, completionTokens
}

// Close releases the underlying connection. Closing before the stream is
// done cancels the backend's generation.
func (s *ChatStream) Close() error {
	return s.body.Close()
}

package chatstream

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"
)

// openAICompatibleStream parses the SSE shape shared by the gateway
// contract (spec.md §6), OpenAI, and Groq: lines prefixed "data: ", a
// "[DONE]" terminator, and `choices[0].delta.content` per event.
type openAICompatibleStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
}

func newOpenAICompatibleStream(body io.ReadCloser) *openAICompatibleStream {
	return &openAICompatibleStream{body: body, scanner: bufio.NewScanner(body)}
}

func (s *openAICompatibleStream) Next() (string, error) {
	for s.scanner.Scan() {
		line := s.scanner.Text()
		payload, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}
		if payload == "[DONE]" {
			return "", errStreamDone
		}

		var event struct {
			Choices []struct {
				Delta struct {
					Content string `json:"content"`
				} `json:"delta"`
			} `json:"choices"`
		}
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			continue
		}
		if len(event.Choices) == 0 {
			continue
		}
		return event.Choices[0].Delta.Content, nil
	}
	if err := s.scanner.Err(); err != nil {
		return "", err
	}
	return "", errStreamDone
}

func (s *openAICompatibleStream) Close() error { return s.body.Close() }

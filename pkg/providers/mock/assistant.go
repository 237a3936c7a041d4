package mock

import (
	"context"
	"strings"
	"time"

	"github.com/voxa-ai/voxa/pkg/assistant"
)

type AssistantConfig struct {
	ResponseText string
	StreamChunks []string
	Title        string
	ChunkDelay   time.Duration
	StreamErr    error
	ConnectErr   error
}

// AssistantAdapter streams a canned reply, optionally word by word.
type AssistantAdapter struct {
	cfg AssistantConfig
}

func NewAssistantAdapter(cfg AssistantConfig) *AssistantAdapter {
	if cfg.ResponseText == "" && len(cfg.StreamChunks) == 0 {
		cfg.ResponseText = "mock response"
	}
	return &AssistantAdapter{cfg: cfg}
}

func (a *AssistantAdapter) Name() string { return "mock_assistant" }

func (a *AssistantAdapter) Stream(ctx context.Context, req assistant.Request) (<-chan assistant.Event, error) {
	if a.cfg.ConnectErr != nil {
		return nil, a.cfg.ConnectErr
	}
	chunks := a.cfg.StreamChunks
	if len(chunks) == 0 {
		chunks = splitWords(a.cfg.ResponseText)
	}

	out := make(chan assistant.Event, len(chunks)+2)
	go func() {
		defer close(out)
		if a.cfg.Title != "" {
			out <- assistant.Event{Type: assistant.EventTitle, Text: a.cfg.Title}
		}
		for _, chunk := range chunks {
			if a.cfg.ChunkDelay > 0 {
				select {
				case <-ctx.Done():
					return
				case <-time.After(a.cfg.ChunkDelay):
				}
			}
			select {
			case out <- assistant.Event{Type: assistant.EventContent, Text: chunk}:
			case <-ctx.Done():
				return
			}
		}
		if a.cfg.StreamErr != nil {
			out <- assistant.Event{Type: assistant.EventError, Err: a.cfg.StreamErr}
			return
		}
		out <- assistant.Event{Type: assistant.EventDone}
	}()
	return out, nil
}

// splitWords keeps trailing spaces on each chunk so concatenation restores
// the original text.
func splitWords(text string) []string {
	words := strings.Fields(text)
	out := make([]string, len(words))
	for i, w := range words {
		if i < len(words)-1 {
			w += " "
		}
		out[i] = w
	}
	return out
}

var _ assistant.Adapter = (*AssistantAdapter)(nil)

package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	copilot "github.com/github/copilot-sdk/go"

	"certsheet/internal/config"
	"certsheet/internal/models"
)

// Copilot extracts certificate fields through a GitHub Copilot CLI session.
// The image is written to a temporary file and sent as an attachment.
type Copilot struct {
	client  *copilot.Client
	model   string
	timeout time.Duration
	prompt  string
	tmpDir  string
	log     *slog.Logger
}

// NewCopilot starts the Copilot CLI server and verifies it answers a ping.
// Callers must Close the extractor to stop the server.
func NewCopilot(cfg config.ExtractorConfig, log *slog.Logger) (*Copilot, error) {
	prompt, err := Prompt()
	if err != nil {
		return nil, err
	}

	tmpDir, err := os.MkdirTemp("", "certsheet-copilot-")
	if err != nil {
		return nil, fmt.Errorf("failed to create attachment directory: %w", err)
	}

	level := "error"
	if log.Enabled(context.Background(), slog.LevelDebug) {
		level = "info"
	}
	sdkClient := copilot.NewClient(&copilot.ClientOptions{
		Cwd:      tmpDir,
		LogLevel: level,
	})

	log.Info("Starting Copilot client...")
	if err := sdkClient.Start(); err != nil {
		_ = os.RemoveAll(tmpDir)
		return nil, fmt.Errorf("failed to start Copilot client: %w", err)
	}
	if _, err := sdkClient.Ping("health-check"); err != nil {
		sdkClient.Stop()
		_ = os.RemoveAll(tmpDir)
		return nil, fmt.Errorf("copilot client ping failed: %w", err)
	}
	log.Info("Copilot client started successfully")

	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout == 0 {
		timeout = 120 * time.Second
	}

	return &Copilot{
		client:  sdkClient,
		model:   cfg.Model,
		timeout: timeout,
		prompt:  prompt,
		tmpDir:  tmpDir,
		log:     log,
	}, nil
}

// Close stops the Copilot CLI server and removes attachment files.
func (c *Copilot) Close() error {
	c.log.Info("Stopping Copilot client...")
	errs := c.client.Stop()
	_ = os.RemoveAll(c.tmpDir)
	if len(errs) > 0 {
		for _, err := range errs {
			c.log.Error("Error during Copilot client shutdown", slog.String("error", err.Error()))
		}
		return fmt.Errorf("encountered %d errors during shutdown", len(errs))
	}
	return nil
}

// Extract runs one session per image and decodes the final assistant message.
func (c *Copilot) Extract(ctx context.Context, image []byte) (models.Extraction, error) {
	if len(image) == 0 {
		return nil, ErrEmptyImage
	}

	mediaType := MediaType(image)
	ext := ".jpg"
	if mediaType != "image/jpeg" {
		ext = "." + strings.TrimPrefix(mediaType, "image/")
	}

	f, err := os.CreateTemp(c.tmpDir, "certificate-*"+ext)
	if err != nil {
		return nil, fmt.Errorf("failed to create attachment: %w", err)
	}
	path := f.Name()
	defer func() { _ = os.Remove(path) }()
	if _, err := f.Write(image); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to write attachment: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to write attachment: %w", err)
	}

	c.log.Info("llm.extract.start",
		slog.String("provider", config.ProviderCopilot),
		slog.String("model", c.model),
		slog.String("media_type", mediaType),
		slog.Int("image_bytes", len(image)),
	)

	session, err := c.client.CreateSession(&copilot.SessionConfig{
		Model:     c.model,
		Streaming: false,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	defer func() {
		if err := session.Destroy(); err != nil {
			c.log.Error("Failed to destroy session", slog.String("error", err.Error()))
		}
	}()

	reply := newReplyCollector()
	session.On(reply.handle)

	_, err = session.Send(copilot.MessageOptions{
		Prompt: c.prompt,
		Attachments: []copilot.Attachment{
			{
				Type:        copilot.File,
				Path:        path,
				DisplayName: "certificate" + ext,
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to send message: %w", err)
	}

	text, err := reply.wait(ctx, c.timeout)
	if err != nil {
		return nil, err
	}

	result, err := DecodeReply(text)
	if err != nil {
		c.log.Error("llm.extract.decode_error", slog.String("error", err.Error()))
		return nil, err
	}
	logSection(c.log, result)
	return result, nil
}

// replyCollector gathers the events of one Copilot session. A session may emit
// several assistant messages (tool use, retries); only the last one is the answer.
type replyCollector struct {
	mu   sync.Mutex
	last string
	done chan error
}

func newReplyCollector() *replyCollector {
	return &replyCollector{done: make(chan error, 1)}
}

func (r *replyCollector) handle(event copilot.SessionEvent) {
	switch event.Type {
	case copilot.AssistantMessage:
		if event.Data.Content != nil {
			r.message(*event.Data.Content)
		}
	case copilot.SessionIdle:
		r.finish(nil)
	case copilot.SessionError:
		r.finish(sessionError(event.Data))
	}
}

func (r *replyCollector) message(content string) {
	r.mu.Lock()
	r.last = content
	r.mu.Unlock()
}

// finish records the end of the session. Only the first call counts.
func (r *replyCollector) finish(err error) {
	select {
	case r.done <- err:
	default:
	}
}

// wait blocks until the session finishes, the timeout elapses or ctx is done,
// and returns the final assistant message.
func (r *replyCollector) wait(ctx context.Context, timeout time.Duration) (string, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-r.done:
		if err != nil {
			return "", err
		}
	case <-timer.C:
		return "", fmt.Errorf("copilot session timed out after %s", timeout)
	case <-ctx.Done():
		return "", fmt.Errorf("copilot session cancelled: %w", ctx.Err())
	}

	r.mu.Lock()
	text := r.last
	r.mu.Unlock()
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyReply
	}
	return text, nil
}

func sessionError(data copilot.Data) error {
	switch {
	case data.Error != nil && data.Error.ErrorClass != nil:
		return fmt.Errorf("copilot session error: %s", data.Error.ErrorClass.Message)
	case data.Error != nil && data.Error.String != nil:
		return fmt.Errorf("copilot session error: %s", *data.Error.String)
	case data.Message != nil:
		return fmt.Errorf("copilot session error: %s", *data.Message)
	}
	return errors.New("copilot session error")
}

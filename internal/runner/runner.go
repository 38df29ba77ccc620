package runner

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/comigor/convo-go/internal/conversation"
	"github.com/comigor/convo-go/internal/history"
	"github.com/comigor/convo-go/internal/logger"
)

// Recorder stores answered exchanges. *history.Store satisfies it.
type Recorder interface {
	Record(ctx context.Context, ex history.Exchange) (history.Exchange, error)
}

// Runner sends one conversation request per Execute call and reports the
// outcome to its writer. It keeps no state between calls.
type Runner struct {
	sender   conversation.Sender
	out      io.Writer
	recorder Recorder
}

// Option configures a Runner.
type Option func(*Runner)

// WithRecorder records every 200 reply after it has been reported.
func WithRecorder(rec Recorder) Option {
	return func(r *Runner) { r.recorder = rec }
}

// New creates a Runner writing its report to out.
func New(sender conversation.Sender, out io.Writer, opts ...Option) *Runner {
	r := &Runner{sender: sender, out: out}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Execute issues exactly one request. A non-200 reply is reported and is not
// an error; transport failures and malformed 200 replies are returned.
func (r *Runner) Execute(ctx context.Context, req conversation.Request) error {
	res, err := r.sender.Send(ctx, req)
	if err != nil {
		logger.L.Error("conversation request failed", "error", err)
		return err
	}

	if res.StatusCode != http.StatusOK {
		logger.L.Warn("conversation request rejected", "status", res.StatusCode)
		fmt.Fprintf(r.out, "request failed, status code: %d\n", res.StatusCode)
		fmt.Fprintf(r.out, "error message: %s\n", res.Body)
		return nil
	}

	resp := res.Response
	if resp == nil {
		return fmt.Errorf("%w: no payload on status 200", conversation.ErrDecode)
	}

	fmt.Fprintf(r.out, "response: %s\n", resp.Response)
	fmt.Fprintf(r.out, "conversationId: %s\n", resp.ConversationID)
	fmt.Fprintf(r.out, "messageId: %s\n", resp.MessageID)

	if resp.Usage != nil {
		logger.L.Debug("token usage", "prompt_tokens", resp.Usage.PromptTokens, "completion_tokens", resp.Usage.CompletionTokens)
	}

	if r.recorder != nil {
		_, err := r.recorder.Record(ctx, history.Exchange{
			ConversationID:  resp.ConversationID,
			ParentMessageID: req.ParentMessageID,
			MessageID:       resp.MessageID,
			Message:         req.Message,
			Response:        resp.Response,
		})
		if err != nil {
			logger.L.Warn("failed to record exchange in history", "error", err)
		}
	}

	return nil
}

// Package ai implements the "ai" check type: wraps one of the teacher's
// graph/model.ChatModel adapters (Anthropic/OpenAI/Google), the shared AI
// concurrency limiter (internal/execctx), the Session Registry
// (internal/session) for clone/append conversation reuse, and a
// per-provider circuit breaker (sony/gobreaker) classifying transient vs
// terminal failures (§4.6 step 4, §7).
package ai

import (
	"context"
	"fmt"

	"github.com/sony/gobreaker"

	"github.com/probelabs/visor-sub002/graph/model"
	"github.com/probelabs/visor-sub002/internal/engine"
	"github.com/probelabs/visor-sub002/internal/provider"
	"github.com/probelabs/visor-sub002/internal/session"
)

// conversation is the session handle this package registers under
// sessionId, generalizing model.Message history with the prompt that
// produced it.
type conversation struct {
	messages []model.Message
}

func cloneConversation(h session.Handle) session.Handle {
	src := h.(*conversation)
	out := make([]model.Message, len(src.messages))
	copy(out, src.messages)
	return &conversation{messages: out}
}

// Provider drives one ChatModel per check execution.
type Provider struct {
	Model    model.ChatModel
	Sessions *session.Registry
	breaker  *gobreaker.CircuitBreaker
	nextID   func() string
}

// New constructs an ai Provider. nextID generates fresh session ids when a
// check has no parent session to reuse; callers typically pass
// google/uuid's uuid.NewString.
func New(chatModel model.ChatModel, sessions *session.Registry, nextID func() string) *Provider {
	return &Provider{
		Model:    chatModel,
		Sessions: sessions,
		breaker:  provider.NewProviderBreaker("ai"),
		nextID:   nextID,
	}
}

func (*Provider) Name() string        { return "ai" }
func (*Provider) Description() string { return "invokes a configured LLM chat model" }

// ValidateConfig requires a non-empty "prompt".
func (*Provider) ValidateConfig(config map[string]any) bool {
	prompt, ok := config["prompt"].(string)
	return ok && prompt != ""
}

type retryableError struct{ error }

func (retryableError) Retryable() bool { return true }

// Execute resolves the conversation for this call (new, cloned, or
// appended per req.Exec.SessionMode), sends it through the breaker-guarded
// ChatModel, registers the updated handle, and returns the chat text as
// outputValue with the session id attached (§6.3 "For AI providers only").
func (p *Provider) Execute(ctx context.Context, req provider.Request) (provider.Result, error) {
	prompt, _ := req.Config["prompt"].(string)
	if prompt == "" {
		return provider.Result{}, fmt.Errorf("ai: missing prompt")
	}

	sessionID, conv, err := p.resolveConversation(req)
	if err != nil {
		return provider.Result{}, &engine.EngineError{
			Message: err.Error(), Code: engine.KindSessionReuseFailed, CheckID: req.Exec.CheckID, Cause: err,
		}
	}

	if err := req.Exec.AcquireAI(ctx); err != nil {
		return provider.Result{}, fmt.Errorf("ai: acquire concurrency slot: %w", err)
	}
	defer req.Exec.ReleaseAI()

	messages := append(append([]model.Message{}, conv.messages...), model.Message{Role: model.RoleUser, Content: prompt})

	out, err := p.breaker.Execute(func() (any, error) {
		return p.Model.Chat(ctx, messages, nil)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return provider.Result{}, retryableError{fmt.Errorf("ai: circuit open: %w", err)}
		}
		return provider.Result{}, retryableError{fmt.Errorf("ai: chat failed: %w", err)}
	}
	chatOut := out.(model.ChatOut)

	conv.messages = append(messages, model.Message{Role: model.RoleAssistant, Content: chatOut.Text})
	p.Sessions.Register(sessionID, conv)

	return provider.Result{
		OutputValue: map[string]any{"text": chatOut.Text, "toolCalls": chatOut.ToolCalls},
		SessionID:   sessionID,
	}, nil
}

func (p *Provider) resolveConversation(req provider.Request) (string, *conversation, error) {
	if req.Exec.ParentSessionID == "" {
		id := p.nextID()
		conv := &conversation{}
		p.Sessions.Register(id, conv)
		return id, conv, nil
	}

	id := p.nextID()
	switch req.Exec.SessionMode {
	case engine.SessionAppend:
		handle, err := p.Sessions.Append(req.Exec.ParentSessionID, id)
		if err != nil {
			return "", nil, err
		}
		return req.Exec.ParentSessionID, handle.(*conversation), nil
	default: // engine.SessionClone, and the zero value default (§4.5 "recommended default")
		if err := p.Sessions.Clone(req.Exec.ParentSessionID, id, cloneConversation); err != nil {
			return "", nil, err
		}
		handle, _ := p.Sessions.Get(id)
		return id, handle.(*conversation), nil
	}
}

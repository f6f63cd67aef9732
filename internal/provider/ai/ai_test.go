package ai

import (
	"context"
	"errors"
	"testing"

	"github.com/probelabs/visor-sub002/graph/model"
	"github.com/probelabs/visor-sub002/internal/engine"
	"github.com/probelabs/visor-sub002/internal/execctx"
	"github.com/probelabs/visor-sub002/internal/provider"
	"github.com/probelabs/visor-sub002/internal/session"
)

// fakeChatModel is a minimal model.ChatModel fixture for exercising
// Provider.Execute: it records every call and returns a configured
// response or error.
type fakeChatModel struct {
	out   model.ChatOut
	err   error
	calls []fakeCall
}

type fakeCall struct {
	messages []model.Message
	tools    []model.ToolSpec
}

func (f *fakeChatModel) Chat(_ context.Context, messages []model.Message, tools []model.ToolSpec) (model.ChatOut, error) {
	f.calls = append(f.calls, fakeCall{messages: messages, tools: tools})
	if f.err != nil {
		return model.ChatOut{}, f.err
	}
	return f.out, nil
}

func newTestProvider(m model.ChatModel) *Provider {
	return New(m, session.New(), func() string { return "sess-1" })
}

func TestValidateConfigRequiresNonEmptyPrompt(t *testing.T) {
	p := newTestProvider(&fakeChatModel{})
	if p.ValidateConfig(map[string]any{}) {
		t.Fatal("expected ValidateConfig to reject a missing prompt")
	}
	if p.ValidateConfig(map[string]any{"prompt": ""}) {
		t.Fatal("expected ValidateConfig to reject an empty prompt")
	}
	if !p.ValidateConfig(map[string]any{"prompt": "hello"}) {
		t.Fatal("expected ValidateConfig to accept a non-empty prompt")
	}
}

func TestExecuteRejectsMissingPrompt(t *testing.T) {
	p := newTestProvider(&fakeChatModel{})
	_, err := p.Execute(context.Background(), provider.Request{Config: map[string]any{}})
	if err == nil {
		t.Fatal("expected an error for a missing prompt")
	}
}

func TestExecuteNewSessionSendsSinglePrompt(t *testing.T) {
	m := &fakeChatModel{out: model.ChatOut{Text: "hi there"}}
	p := newTestProvider(m)

	res, err := p.Execute(context.Background(), provider.Request{
		Config: map[string]any{"prompt": "hello"},
		Exec:   execctx.Context{Std: context.Background()},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.SessionID == "" {
		t.Fatal("expected a session id to be assigned")
	}
	out, ok := res.OutputValue.(map[string]any)
	if !ok || out["text"] != "hi there" {
		t.Fatalf("unexpected outputValue: %+v", res.OutputValue)
	}
	if len(m.calls) != 1 || len(m.calls[0].messages) != 1 || m.calls[0].messages[0].Content != "hello" {
		t.Fatalf("unexpected calls: %+v", m.calls)
	}

	handle, ok := p.Sessions.Get(res.SessionID)
	if !ok {
		t.Fatal("expected the conversation to be registered")
	}
	conv := handle.(*conversation)
	if len(conv.messages) != 2 || conv.messages[1].Role != model.RoleAssistant {
		t.Fatalf("expected the assistant's reply appended to history, got %+v", conv.messages)
	}
}

func TestExecuteCloneSessionCopiesParentHistory(t *testing.T) {
	m := &fakeChatModel{out: model.ChatOut{Text: "second reply"}}
	p := newTestProvider(m)

	parentID := "parent-1"
	p.Sessions.Register(parentID, &conversation{messages: []model.Message{
		{Role: model.RoleUser, Content: "first prompt"},
		{Role: model.RoleAssistant, Content: "first reply"},
	}})

	res, err := p.Execute(context.Background(), provider.Request{
		Config: map[string]any{"prompt": "follow up"},
		Exec: execctx.Context{
			Std:             context.Background(),
			ParentSessionID: parentID,
			SessionMode:     engine.SessionClone,
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.SessionID == parentID {
		t.Fatal("expected clone mode to register a new session id, not reuse the parent's")
	}
	if len(m.calls[0].messages) != 3 {
		t.Fatalf("expected the cloned history plus the new prompt, got %+v", m.calls[0].messages)
	}

	parentHandle, _ := p.Sessions.Get(parentID)
	if len(parentHandle.(*conversation).messages) != 2 {
		t.Fatal("expected the parent session to be unaffected by the clone")
	}
}

func TestExecuteAppendSessionReusesParentID(t *testing.T) {
	m := &fakeChatModel{out: model.ChatOut{Text: "reply"}}
	p := newTestProvider(m)

	parentID := "parent-2"
	p.Sessions.Register(parentID, &conversation{messages: []model.Message{
		{Role: model.RoleUser, Content: "first prompt"},
	}})

	res, err := p.Execute(context.Background(), provider.Request{
		Config: map[string]any{"prompt": "follow up"},
		Exec: execctx.Context{
			Std:             context.Background(),
			ParentSessionID: parentID,
			SessionMode:     engine.SessionAppend,
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.SessionID != parentID {
		t.Fatalf("expected append mode to keep the parent's session id, got %q", res.SessionID)
	}
}

func TestExecuteUnknownParentSessionFails(t *testing.T) {
	p := newTestProvider(&fakeChatModel{})
	_, err := p.Execute(context.Background(), provider.Request{
		Config: map[string]any{"prompt": "hello"},
		Exec: execctx.Context{
			Std:             context.Background(),
			ParentSessionID: "missing",
			SessionMode:     engine.SessionClone,
		},
	})
	var engineErr *engine.EngineError
	if !errors.As(err, &engineErr) || engineErr.Code != engine.KindSessionReuseFailed {
		t.Fatalf("expected a SessionReuseFailed error, got %v", err)
	}
}

func TestExecuteWrapsModelErrorsAsRetryable(t *testing.T) {
	p := newTestProvider(&fakeChatModel{err: errors.New("rate limited")})

	_, err := p.Execute(context.Background(), provider.Request{
		Config: map[string]any{"prompt": "hello"},
		Exec:   execctx.Context{Std: context.Background()},
	})
	if err == nil {
		t.Fatal("expected an error")
	}
	if !engine.IsRetryable(err) {
		t.Fatalf("expected the wrapped chat model error to be retryable, got %v", err)
	}
}

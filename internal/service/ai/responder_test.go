package ai

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/trailchat/backend/internal/logging"
	"github.com/zhouzirui/trailchat/backend/internal/model/persona"
)

type fakeChatModel struct {
	reply    string
	err      error
	received []*schema.Message
}

func (f *fakeChatModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	f.received = input
	if f.err != nil {
		return nil, f.err
	}
	return schema.AssistantMessage(f.reply, nil), nil
}

func (f *fakeChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := f.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

func (f *fakeChatModel) BindTools(_ []*schema.ToolInfo) error { return nil }

func defaultPersona(t *testing.T) persona.Persona {
	t.Helper()
	p, ok := persona.Resolve(persona.NewMemoryStore(persona.Seed()), persona.DefaultID)
	if !ok {
		t.Fatal("default persona missing")
	}
	return p
}

func TestGenerateReplySendsSystemPromptAndQuery(t *testing.T) {
	fake := &fakeChatModel{reply: "哈囉"}
	responder, err := NewResponder(context.Background(), fake, defaultPersona(t), logging.Discard())
	if err != nil {
		t.Fatalf("NewResponder err: %v", err)
	}

	reply, err := responder.GenerateReply(context.Background(), "你好")
	if err != nil {
		t.Fatalf("GenerateReply err: %v", err)
	}
	if reply != "哈囉" {
		t.Fatalf("unexpected reply %q", reply)
	}

	if len(fake.received) != 2 {
		t.Fatalf("expected system and user messages, got %d", len(fake.received))
	}
	if fake.received[0].Role != schema.System || !strings.Contains(fake.received[0].Content, "AI 助手") {
		t.Fatalf("unexpected system message: %+v", fake.received[0])
	}
	if fake.received[1].Role != schema.User || fake.received[1].Content != "你好" {
		t.Fatalf("unexpected user message: %+v", fake.received[1])
	}
}

func TestGenerateReplyPropagatesModelError(t *testing.T) {
	fake := &fakeChatModel{err: errors.New("quota exceeded")}
	responder, err := NewResponder(context.Background(), fake, defaultPersona(t), logging.Discard())
	if err != nil {
		t.Fatalf("NewResponder err: %v", err)
	}

	if _, err := responder.GenerateReply(context.Background(), "hi"); err == nil {
		t.Fatal("expected error from failing model")
	}
}

func TestApologyIncludesCause(t *testing.T) {
	msg := Apology(errors.New("timeout"))
	if !strings.Contains(msg, "抱歉") || !strings.Contains(msg, "timeout") {
		t.Fatalf("unexpected apology %q", msg)
	}
}

func TestBasicPromptForUnknownPersona(t *testing.T) {
	pm := NewPersonaPromptManager()
	prompt := pm.BuildSystemPrompt(persona.Persona{ID: "custom", Name: "小幫手", Title: "測試", Tone: "輕鬆"})
	if !strings.Contains(prompt, "你是小幫手") {
		t.Fatalf("unexpected fallback prompt %q", prompt)
	}
}

func TestNewResponderRequiresModel(t *testing.T) {
	if _, err := NewResponder(context.Background(), nil, defaultPersona(t), nil); err == nil {
		t.Fatal("expected error without a chat model")
	}
}

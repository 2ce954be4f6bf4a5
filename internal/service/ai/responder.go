package ai

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/trailchat/backend/internal/model/persona"
)

// Responder produces the automated reply to a user message.
type Responder struct {
	persona persona.Persona
	system  string
	chain   compose.Runnable[map[string]any, *schema.Message]
	log     *slog.Logger
}

// NewResponder compiles the prompt chain around chatModel.
func NewResponder(ctx context.Context, chatModel model.ChatModel, p persona.Persona, logger *slog.Logger) (*Responder, error) {
	if chatModel == nil {
		return nil, fmt.Errorf("chat model is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &Responder{
		persona: p,
		system:  NewPersonaPromptManager().BuildSystemPrompt(p),
		chain:   runnable,
		log:     logger.With("component", "responder", "persona", p.ID),
	}, nil
}

// Persona returns the persona the responder speaks as.
func (r *Responder) Persona() persona.Persona {
	return r.persona
}

// GenerateReply asks the model for a reply to text.
func (r *Responder) GenerateReply(ctx context.Context, text string) (string, error) {
	response, err := r.chain.Invoke(ctx, map[string]any{
		"system": r.system,
		"query":  text,
	})
	if err != nil {
		return "", fmt.Errorf("failed to run AI chain: %w", err)
	}

	r.log.Info("reply generated", "length", len(response.Content))
	return response.Content, nil
}

// Apology is the reply stored in place of a failed generation.
func Apology(err error) string {
	return fmt.Sprintf("抱歉，AI 暫時無法回應您的問題。\n\n錯誤詳情：%v", err)
}

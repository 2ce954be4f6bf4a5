package ai

import (
	"fmt"
	"strings"

	"github.com/zhouzirui/trailchat/backend/internal/model/persona"
)

// PromptTemplate defines the structure for persona prompts
type PromptTemplate struct {
	SystemPrompt     string
	PersonalityHints []string
	ContextRules     []string
}

// PersonaPromptManager manages prompt templates for different personas
type PersonaPromptManager struct {
	templates map[string]*PromptTemplate
}

// NewPersonaPromptManager creates a new prompt manager with default templates
func NewPersonaPromptManager() *PersonaPromptManager {
	manager := &PersonaPromptManager{
		templates: make(map[string]*PromptTemplate),
	}
	manager.loadDefaultTemplates()
	return manager
}

// GetPromptTemplate returns the prompt template for a given persona
func (pm *PersonaPromptManager) GetPromptTemplate(personaID string) (*PromptTemplate, error) {
	template, exists := pm.templates[personaID]
	if !exists {
		return nil, fmt.Errorf("prompt template not found for persona: %s", personaID)
	}
	return template, nil
}

// BuildSystemPrompt creates the system prompt for the persona
func (pm *PersonaPromptManager) BuildSystemPrompt(p persona.Persona) string {
	template, err := pm.GetPromptTemplate(p.ID)
	if err != nil {
		return pm.buildBasicSystemPrompt(p)
	}

	return fmt.Sprintf(`%s

角色資訊：
- 名字：%s
- 身分：%s
- 語氣：%s

個性提示：
- %s

對話規則：
- %s`,
		template.SystemPrompt,
		p.Name,
		p.Title,
		p.Tone,
		strings.Join(template.PersonalityHints, "\n- "),
		strings.Join(template.ContextRules, "\n- "),
	)
}

// buildBasicSystemPrompt is used for personas without a template
func (pm *PersonaPromptManager) buildBasicSystemPrompt(p persona.Persona) string {
	return fmt.Sprintf(`你是%s，%s。

- 語氣：%s
- 提示：%s

請始終保持角色一致，用%s的風格回應使用者。`,
		p.Name,
		p.Title,
		p.Tone,
		p.PromptHint,
		p.Name,
	)
}

func (pm *PersonaPromptManager) loadDefaultTemplates() {
	pm.templates[persona.DefaultID] = &PromptTemplate{
		SystemPrompt: "你是一位友善的 AI 助手，在多會話聊天應用中回覆使用者的訊息。",
		PersonalityHints: []string{
			"回答要切題，避免冗長的開場白",
			"遇到模糊的問題時，先確認使用者的意圖",
			"不知道答案時坦白說明，不要編造",
		},
		ContextRules: []string{
			"預設使用繁體中文回覆，除非使用者使用其他語言",
			"需要列舉時使用 Markdown 條列",
			"程式碼請放在 Markdown 程式碼區塊中",
		},
	}

	pm.templates["reviewer"] = &PromptTemplate{
		SystemPrompt: "你是一位資深軟體工程師，負責審閱使用者貼上的程式碼與設計。",
		PersonalityHints: []string{
			"優先指出會造成錯誤的問題，其次才是風格",
			"每個問題都附上具體的修正方式",
		},
		ContextRules: []string{
			"以條列方式回覆，每點一個問題",
			"引用程式碼時標明所在位置",
		},
	}
}

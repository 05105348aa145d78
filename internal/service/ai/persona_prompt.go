package ai

import (
	"fmt"
	"strings"

	"github.com/zhouzirui/city-explorer/internal/model/persona"
)

// PersonaPromptManager renders persona system prompts.
type PersonaPromptManager struct{}

// NewPersonaPromptManager creates a new prompt manager.
func NewPersonaPromptManager() *PersonaPromptManager {
	return &PersonaPromptManager{}
}

// BuildSystemPrompt creates the system prompt for a persona bound to a city.
func (pm *PersonaPromptManager) BuildSystemPrompt(p *persona.Persona) string {
	city := p.City
	if city == "" {
		city = persona.DefaultCity
	}

	if p.Template != "" {
		return strings.ReplaceAll(p.Template, persona.CityPlaceholder, city)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are a %s helping newcomers explore %s.\n", p.Title, city)
	b.WriteString("Your expertise includes:\n")
	for i, topic := range p.Topics {
		fmt.Fprintf(&b, "\n%d. **%s**:\n", i+1, topic.Title)
		for _, point := range topic.Points {
			fmt.Fprintf(&b, "   - %s\n", point)
		}
	}
	if p.Guidelines != "" {
		b.WriteString("\n")
		b.WriteString(p.Guidelines)
	}
	return strings.TrimRight(b.String(), "\n")
}

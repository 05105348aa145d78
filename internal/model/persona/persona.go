package persona

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
)

// DefaultCity is used when the user does not name a city.
const DefaultCity = "the city"

// CityPlaceholder marks where the city name goes in a custom template.
const CityPlaceholder = "{city}"

// Topic is one area of expertise advertised by the guide.
type Topic struct {
	Title  string   `toml:"title" json:"title"`
	Emoji  string   `toml:"emoji" json:"emoji,omitempty"`
	Points []string `toml:"points" json:"points"`
}

// Persona captures the guide's role. City is bound once per session.
type Persona struct {
	ID          string  `toml:"id" json:"id"`
	Name        string  `toml:"name" json:"name"`
	Title       string  `toml:"title" json:"title"`
	Tone        string  `toml:"tone" json:"tone"`
	City        string  `toml:"-" json:"city"`
	OpeningLine string  `toml:"opening_line" json:"openingLine"`
	Topics      []Topic `toml:"topics" json:"topics"`
	Guidelines  string  `toml:"guidelines" json:"-"`
	// Template, when set, replaces the generated system prompt. It may
	// reference the city with CityPlaceholder.
	Template string `toml:"template" json:"-"`
}

// Default returns the built-in city guide persona.
func Default() Persona {
	return Persona{
		ID:          "city-guide",
		Name:        "City Explorer",
		Title:       "friendly and knowledgeable city guide assistant",
		Tone:        "helpful, friendly, practical",
		OpeningLine: "Welcome to {city} Explorer Chatbot!",
		Topics: []Topic{
			{
				Title: "Food & Dining",
				Emoji: "🍕",
				Points: []string{
					"Restaurant recommendations (budget-friendly to fine dining)",
					"Local cuisine and specialties",
					"Popular food markets and street food",
					"Dietary restrictions and options",
					"Best times to visit restaurants",
				},
			},
			{
				Title: "Places & Attractions",
				Emoji: "🏛️",
				Points: []string{
					"Tourist attractions and landmarks",
					"Parks, museums, and cultural sites",
					"Shopping areas and markets",
					"Entertainment venues",
					"Hidden gems and off-the-beaten-path locations",
				},
			},
			{
				Title: "Traditions & Culture",
				Emoji: "🎭",
				Points: []string{
					"Local customs and traditions",
					"Festivals and celebrations",
					"Cultural practices and etiquette",
					"Historical background",
					"Language tips and common phrases",
				},
			},
			{
				Title: "Hospitals & Healthcare",
				Emoji: "🏥",
				Points: []string{
					"Hospital locations and contact information",
					"Emergency services and 24/7 facilities",
					"Specialized medical centers",
					"Pharmacy locations",
					"Health insurance information",
				},
			},
		},
		Guidelines: "Always be helpful, friendly, and provide detailed, practical information. " +
			"If you don't know something specific, acknowledge it and provide general guidance.\n" +
			"Remember the context of previous conversations to provide personalized recommendations.",
	}
}

// ForCity returns a copy bound to city. A blank city falls back to DefaultCity.
func (p Persona) ForCity(city string) Persona {
	city = strings.TrimSpace(city)
	if city == "" {
		city = DefaultCity
	}
	p.City = city
	p.Topics = append([]Topic(nil), p.Topics...)
	return p
}

// Greeting renders the opening line for the bound city.
func (p Persona) Greeting() string {
	return strings.ReplaceAll(p.OpeningLine, CityPlaceholder, p.City)
}

// LoadFile reads a TOML persona definition and overlays it on Default.
func LoadFile(path string) (Persona, error) {
	var override Persona
	if _, err := toml.DecodeFile(path, &override); err != nil {
		return Persona{}, fmt.Errorf("decode persona file %s: %w", path, err)
	}

	p := Default()
	if override.ID != "" {
		p.ID = override.ID
	}
	if override.Name != "" {
		p.Name = override.Name
	}
	if override.Title != "" {
		p.Title = override.Title
	}
	if override.Tone != "" {
		p.Tone = override.Tone
	}
	if override.OpeningLine != "" {
		p.OpeningLine = override.OpeningLine
	}
	if len(override.Topics) > 0 {
		p.Topics = override.Topics
	}
	if override.Guidelines != "" {
		p.Guidelines = override.Guidelines
	}
	p.Template = strings.TrimSpace(override.Template)
	return p, nil
}

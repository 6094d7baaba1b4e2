package session

import (
	"fmt"
	"strings"
)

// Preferences tune recipe generation. All fields are optional.
type Preferences struct {
	Servings   int    `json:"servings,omitempty"`
	MaxMinutes int    `json:"maxMinutes,omitempty"`
	Diet       string `json:"diet,omitempty"`
	Cuisine    string `json:"cuisine,omitempty"`
	Notes      string `json:"notes,omitempty"`
}

const extractionPrompt = `You are a kitchen assistant. Identify every distinct food ingredient visible in the photo.

Respond with a single JSON object and nothing else:
{
  "ingredients": [{"name": "string", "confidence": 0.0}],
  "notes": "string",
  "warnings": ["string"]
}

Rules:
- Use short, common ingredient names in singular form ("tomato", not "3 ripe tomatoes").
- confidence is a number between 0 and 1.
- Put anything that is not an ingredient (brands, utensils, uncertainty) in notes.
- Add a warning if the photo is blurry, dark or contains no food.`

func buildExtractionPrompt() string {
	return extractionPrompt
}

// buildGenerationPrompt renders the recipe request from the edited
// ingredient list, the pantry staples and optional preferences.
func buildGenerationPrompt(items, pantry []string, prefs *Preferences) string {
	var sb strings.Builder

	sb.WriteString("You are a home cook. Write one recipe that uses the ingredients below.\n\n")
	sb.WriteString("Ingredients on hand:\n")
	for _, item := range items {
		fmt.Fprintf(&sb, "- %s\n", item)
	}

	if len(pantry) > 0 {
		sb.WriteString("\nPantry staples you may also use:\n")
		for _, item := range pantry {
			fmt.Fprintf(&sb, "- %s\n", item)
		}
	}

	if lines := prefs.lines(); len(lines) > 0 {
		sb.WriteString("\nPreferences:\n")
		for _, l := range lines {
			fmt.Fprintf(&sb, "- %s\n", l)
		}
	}

	sb.WriteString(`
Respond with a single JSON object and nothing else:
{
  "title": "string",
  "description": "string",
  "timeMinutes": 0,
  "servings": 0,
  "category": "string",
  "ingredients": [{"name": "string", "quantity": "string"}],
  "steps": [{"text": "string", "timerMinutes": 0, "tip": "string"}],
  "nutrition": {"calories": 0, "proteinGrams": 0, "carbsGrams": 0, "fatGrams": 0},
  "safetyWarnings": ["string"]
}

Rules:
- Do not require ingredients that are not listed above, except water, salt and pepper.
- timerMinutes and tip are optional per step.
- Add a safety warning for raw meat, eggs or common allergens.
`)
	return sb.String()
}

func (p *Preferences) lines() []string {
	if p == nil {
		return nil
	}
	var out []string
	if p.Servings > 0 {
		out = append(out, fmt.Sprintf("Serves %d", p.Servings))
	}
	if p.MaxMinutes > 0 {
		out = append(out, fmt.Sprintf("Ready in at most %d minutes", p.MaxMinutes))
	}
	if d := strings.TrimSpace(p.Diet); d != "" {
		out = append(out, "Diet: "+d)
	}
	if c := strings.TrimSpace(p.Cuisine); c != "" {
		out = append(out, "Cuisine: "+c)
	}
	if n := strings.TrimSpace(p.Notes); n != "" {
		out = append(out, "Notes: "+n)
	}
	return out
}

package session

import (
	"testing"

	"github.com/sebdah/goldie/v2"
)

func TestExtractionPrompt(t *testing.T) {
	g := goldie.New(t)
	g.Assert(t, "extraction_prompt", []byte(buildExtractionPrompt()))
}

func TestGenerationPrompt(t *testing.T) {
	tests := []struct {
		name   string
		items  []string
		pantry []string
		prefs  *Preferences
	}{
		{
			name:   "generation_prompt_full",
			items:  []string{"chicken", "rice"},
			pantry: []string{"olive oil", "garlic"},
			prefs: &Preferences{
				Servings:   2,
				MaxMinutes: 30,
				Diet:       "halal",
				Cuisine:    "  ",
				Notes:      "kid friendly",
			},
		},
		{
			name:  "generation_prompt_minimal",
			items: []string{"egg"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := goldie.New(t)
			g.Assert(t, tt.name, []byte(buildGenerationPrompt(tt.items, tt.pantry, tt.prefs)))
		})
	}
}

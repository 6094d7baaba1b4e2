package domain

import "time"

// ExtractedIngredient is one ingredient proposed by the extraction model.
type ExtractedIngredient struct {
	Name       string   `json:"name"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// ExtractionResult is the validated output of an ingredient extraction call.
type ExtractionResult struct {
	Ingredients []ExtractedIngredient `json:"ingredients"`
	Notes       string                `json:"notes,omitempty"`
	Warnings    []string              `json:"warnings,omitempty"`
}

// Names returns the ingredient names in model order.
func (r *ExtractionResult) Names() []string {
	names := make([]string, 0, len(r.Ingredients))
	for _, ing := range r.Ingredients {
		names = append(names, ing.Name)
	}
	return names
}

// RecipeIngredient is an ingredient line of a generated recipe.
type RecipeIngredient struct {
	Name     string `json:"name"`
	Quantity string `json:"quantity"`
}

// RecipeStep is one instruction of a generated recipe.
type RecipeStep struct {
	Text         string `json:"text"`
	TimerMinutes *int   `json:"timerMinutes,omitempty"`
	Tip          string `json:"tip,omitempty"`
}

// Nutrition holds per-serving macro estimates.
type Nutrition struct {
	Calories     float64 `json:"calories"`
	ProteinGrams float64 `json:"proteinGrams"`
	CarbsGrams   float64 `json:"carbsGrams"`
	FatGrams     float64 `json:"fatGrams"`
}

// GenerationResult is the validated output of a recipe generation call.
type GenerationResult struct {
	Title          string             `json:"title"`
	Description    string             `json:"description"`
	TimeMinutes    int                `json:"timeMinutes"`
	Servings       int                `json:"servings"`
	Category       string             `json:"category"`
	Ingredients    []RecipeIngredient `json:"ingredients"`
	Steps          []RecipeStep       `json:"steps"`
	Nutrition      *Nutrition         `json:"nutrition,omitempty"`
	SafetyWarnings []string           `json:"safetyWarnings,omitempty"`
}

// Clone returns a deep copy of the result.
func (g *GenerationResult) Clone() *GenerationResult {
	if g == nil {
		return nil
	}
	c := *g
	c.Ingredients = append([]RecipeIngredient(nil), g.Ingredients...)
	c.Steps = make([]RecipeStep, len(g.Steps))
	for i, s := range g.Steps {
		c.Steps[i] = s
		if s.TimerMinutes != nil {
			m := *s.TimerMinutes
			c.Steps[i].TimerMinutes = &m
		}
	}
	if g.Nutrition != nil {
		n := *g.Nutrition
		c.Nutrition = &n
	}
	c.SafetyWarnings = append([]string(nil), g.SafetyWarnings...)
	return &c
}

// RecipeSourceCapture marks recipes produced by the capture pipeline.
const RecipeSourceCapture = "ai_capture"

// Recipe is the domain record persisted remotely after a capture is committed.
type Recipe struct {
	ID             string             `json:"id"`
	Title          string             `json:"title"`
	Description    string             `json:"description"`
	TimeMinutes    int                `json:"timeMinutes"`
	Servings       int                `json:"servings"`
	Category       string             `json:"category"`
	Ingredients    []RecipeIngredient `json:"ingredients"`
	Steps          []RecipeStep       `json:"steps"`
	Nutrition      *Nutrition         `json:"nutrition,omitempty"`
	SafetyWarnings []string           `json:"safetyWarnings,omitempty"`
	Source         string             `json:"source"`
	SourceImage    string             `json:"sourceImage,omitempty"`
	CreatedAt      time.Time          `json:"createdAt"`
}

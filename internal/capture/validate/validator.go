// Package validate turns raw model output into trusted extraction and
// generation results. Output is sanitized, checked against CUE contracts,
// then decoded into wire structs whose numerics are coerced before being
// promoted to domain types.
package validate

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	cuejson "cuelang.org/go/encoding/json"

	"github.com/vietddude/snapcook/internal/core/domain"
)

var (
	// ErrMalformed means the response did not contain a parseable JSON object.
	ErrMalformed = errors.New("malformed response")

	// ErrSchema means the JSON parsed but did not satisfy the contract.
	ErrSchema = errors.New("response does not match schema")
)

//go:embed schema.cue
var schemaSource string

// Validator checks responses against the compiled contracts. A cue.Context
// is not safe for concurrent use, so calls are serialized.
type Validator struct {
	mu         sync.Mutex
	ctx        *cue.Context
	extraction cue.Value
	generation cue.Value
}

// New compiles the contracts.
func New() (*Validator, error) {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	v := &Validator{
		ctx:        ctx,
		extraction: schema.LookupPath(cue.ParsePath("#Extraction")),
		generation: schema.LookupPath(cue.ParsePath("#Generation")),
	}
	if !v.extraction.Exists() || !v.generation.Exists() {
		return nil, errors.New("schema is missing a contract definition")
	}
	return v, nil
}

var (
	defaultOnce sync.Once
	defaultV    *Validator
)

func std() *Validator {
	defaultOnce.Do(func() {
		v, err := New()
		if err != nil {
			// The schema is embedded; failing here is a build defect
			panic(err)
		}
		defaultV = v
	})
	return defaultV
}

// Extraction validates raw against the extraction contract using the
// package-level validator.
func Extraction(raw string) (*domain.ExtractionResult, error) {
	return std().Extraction(raw)
}

// Generation validates raw against the generation contract using the
// package-level validator.
func Generation(raw string) (*domain.GenerationResult, error) {
	return std().Generation(raw)
}

type wireExtraction struct {
	Ingredients []struct {
		Name       string `json:"name"`
		Confidence any    `json:"confidence"`
	} `json:"ingredients"`
	Notes    *string  `json:"notes"`
	Warnings []string `json:"warnings"`
}

// Extraction validates raw and promotes it to an ExtractionResult.
func (v *Validator) Extraction(raw string) (*domain.ExtractionResult, error) {
	data, err := v.check(raw, v.extraction)
	if err != nil {
		return nil, err
	}

	var w wireExtraction
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, schemaError(err)
	}
	if w.Ingredients == nil {
		return nil, schemaError(errors.New("ingredients is required"))
	}
	for i, ing := range w.Ingredients {
		if strings.TrimSpace(ing.Name) == "" {
			return nil, schemaError(fmt.Errorf("ingredients.%d.name is required", i))
		}
	}

	res := &domain.ExtractionResult{
		Ingredients: make([]domain.ExtractedIngredient, 0, len(w.Ingredients)),
		Notes:       strOrEmpty(w.Notes),
		Warnings:    cleanList(w.Warnings),
	}
	for _, ing := range w.Ingredients {
		res.Ingredients = append(res.Ingredients, domain.ExtractedIngredient{
			Name:       strings.TrimSpace(ing.Name),
			Confidence: optFloat(ing.Confidence),
		})
	}
	return res, nil
}

type wireGeneration struct {
	Title       string  `json:"title"`
	Description *string `json:"description"`
	TimeMinutes any     `json:"timeMinutes"`
	Servings    any     `json:"servings"`
	Category    *string `json:"category"`
	Ingredients []struct {
		Name     string `json:"name"`
		Quantity any    `json:"quantity"`
	} `json:"ingredients"`
	Steps []struct {
		Text         string  `json:"text"`
		TimerMinutes any     `json:"timerMinutes"`
		Tip          *string `json:"tip"`
	} `json:"steps"`
	Nutrition *struct {
		Calories     any `json:"calories"`
		ProteinGrams any `json:"proteinGrams"`
		CarbsGrams   any `json:"carbsGrams"`
		FatGrams     any `json:"fatGrams"`
	} `json:"nutrition"`
	SafetyWarnings []string `json:"safetyWarnings"`
}

func (w *wireGeneration) required() error {
	switch {
	case strings.TrimSpace(w.Title) == "":
		return errors.New("title is required")
	case w.Ingredients == nil:
		return errors.New("ingredients is required")
	case w.Steps == nil:
		return errors.New("steps is required")
	}
	for i, ing := range w.Ingredients {
		if strings.TrimSpace(ing.Name) == "" {
			return fmt.Errorf("ingredients.%d.name is required", i)
		}
	}
	for i, st := range w.Steps {
		if strings.TrimSpace(st.Text) == "" {
			return fmt.Errorf("steps.%d.text is required", i)
		}
	}
	return nil
}

// Generation validates raw and promotes it to a GenerationResult.
func (v *Validator) Generation(raw string) (*domain.GenerationResult, error) {
	data, err := v.check(raw, v.generation)
	if err != nil {
		return nil, err
	}

	var w wireGeneration
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, schemaError(err)
	}
	if err := w.required(); err != nil {
		return nil, schemaError(err)
	}

	res := &domain.GenerationResult{
		Title:          strings.TrimSpace(w.Title),
		Description:    strOrEmpty(w.Description),
		TimeMinutes:    toCount(w.TimeMinutes),
		Servings:       toCount(w.Servings),
		Category:       strOrEmpty(w.Category),
		Ingredients:    make([]domain.RecipeIngredient, 0, len(w.Ingredients)),
		Steps:          make([]domain.RecipeStep, 0, len(w.Steps)),
		SafetyWarnings: cleanList(w.SafetyWarnings),
	}
	for _, ing := range w.Ingredients {
		res.Ingredients = append(res.Ingredients, domain.RecipeIngredient{
			Name:     strings.TrimSpace(ing.Name),
			Quantity: toText(ing.Quantity),
		})
	}
	for _, st := range w.Steps {
		res.Steps = append(res.Steps, domain.RecipeStep{
			Text:         strings.TrimSpace(st.Text),
			TimerMinutes: optCount(st.TimerMinutes),
			Tip:          strOrEmpty(st.Tip),
		})
	}
	if n := w.Nutrition; n != nil {
		res.Nutrition = &domain.Nutrition{
			Calories:     toFloat(n.Calories),
			ProteinGrams: toFloat(n.ProteinGrams),
			CarbsGrams:   toFloat(n.CarbsGrams),
			FatGrams:     toFloat(n.FatGrams),
		}
	}
	return res, nil
}

// check sanitizes raw, parses it as JSON and unifies it with contract.
// It returns the sanitized bytes for decoding.
func (v *Validator) check(raw string, contract cue.Value) ([]byte, error) {
	data := []byte(Sanitize(raw))

	expr, err := cuejson.Extract("response", data)
	if err != nil {
		return nil, domain.NewError(domain.KindValidation,
			"response is not valid JSON",
			fmt.Errorf("%w: %v", ErrMalformed, firstCUEError(err)))
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	val := v.ctx.BuildExpr(expr)
	if err := val.Err(); err != nil {
		return nil, domain.NewError(domain.KindValidation,
			"response is not valid JSON",
			fmt.Errorf("%w: %v", ErrMalformed, firstCUEError(err)))
	}
	if val.IncompleteKind() != cue.StructKind {
		return nil, schemaError(errors.New("top-level value is not an object"))
	}

	unified := contract.Unify(val)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, schemaError(firstCUEError(err))
	}
	return data, nil
}

func schemaError(err error) error {
	return domain.NewError(domain.KindValidation,
		"response does not match the expected shape",
		fmt.Errorf("%w: %v", ErrSchema, err))
}

// firstCUEError keeps messages short; CUE reports one entry per conflict.
func firstCUEError(err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	return errs[0]
}

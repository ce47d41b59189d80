package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
)

// RecipeStep is one ingredient of a recipe and its target volume in ml.
type RecipeStep struct {
	Ingredient string  `json:"ingredient"`
	Amount     float64 `json:"amount"`
}

// Ingredients is the ordered pour list. It decodes from either an array of
// steps or a JSON object, in which case the key order of the document is kept.
type Ingredients []RecipeStep

// UnmarshalJSON accepts `[{"ingredient":"vodka","amount":40}]` and `{"vodka":40}`.
func (in *Ingredients) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*in = nil
		return nil
	}
	if trimmed[0] == '[' {
		var steps []RecipeStep
		if err := json.Unmarshal(trimmed, &steps); err != nil {
			return err
		}
		*in = steps
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("ingredients: expected object or array, got %v", tok)
	}

	steps := make([]RecipeStep, 0, 8)
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("ingredients: unexpected key %v", keyTok)
		}
		var amount float64
		if err := dec.Decode(&amount); err != nil {
			return fmt.Errorf("ingredient %q: %w", key, err)
		}
		steps = append(steps, RecipeStep{Ingredient: key, Amount: amount})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*in = steps
	return nil
}

// Recipe is immutable once handed to the sequencer.
type Recipe struct {
	CocktailID       string      `json:"cocktailId"`
	Ingredients      Ingredients `json:"ingredients"`
	ManualIngredient string      `json:"manualIngredient,omitempty"` // added by hand, never pumped
}

// TotalVolume is the sum of all target amounts.
func (r Recipe) TotalVolume() float64 {
	var sum float64
	for _, s := range r.Ingredients {
		sum += s.Amount
	}
	return sum
}

// Validate checks the recipe shape only; channel mapping is the sequencer's job.
func (r Recipe) Validate() error {
	if len(r.Ingredients) == 0 {
		return ErrEmptyRecipe
	}
	for _, s := range r.Ingredients {
		if s.Ingredient == "" {
			return fmt.Errorf("%w: empty ingredient id", ErrInvalidAmount)
		}
		if math.IsNaN(s.Amount) || math.IsInf(s.Amount, 0) || s.Amount <= 0 {
			return fmt.Errorf("%w: %s=%v", ErrInvalidAmount, s.Ingredient, s.Amount)
		}
	}
	return nil
}

package inventory

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// PRICE MUTATION ENGINE
// =============================================================================

var hundred = decimal.NewFromInt(100)

// Storage bounds. A rule value keeps at most ValueScale decimal places and
// stays below maxRuleValue in magnitude; prices stay below maxPrice.
const ValueScale = 4

var (
	maxRuleValue = decimal.New(1, 10)
	maxPrice     = decimal.New(1, 12)
)

// ApplyRule computes the new price for a product currently priced at price.
//
//	percentage: p' = p * (1 + value/100)
//	fixed:      p' = p + value
//
// The result is floored at zero and rounded half-to-even to PriceScale places,
// once, from the unrounded intermediate. Pure and deterministic.
func ApplyRule(price decimal.Decimal, rule AdjustmentRule) decimal.Decimal {
	var next decimal.Decimal
	switch rule.Kind {
	case RulePercentage:
		// p * (100 + v) / 100, exact in decimal
		next = price.Mul(hundred.Add(rule.Value)).Shift(-2)
	case RuleFixed:
		next = price.Add(rule.Value)
	default:
		return price
	}

	if next.IsNegative() {
		next = decimal.Zero
	}
	return RoundPrice(next)
}

// ValidateRule checks a rule before any scope is resolved.
func ValidateRule(rule AdjustmentRule) error {
	if !rule.Kind.Valid() {
		return invalid("tipo_ajuste", "must be porcentaje or valor")
	}
	if !rule.Value.Equal(rule.Value.Truncate(ValueScale)) {
		return invalid("valor", "must have at most 4 decimal places")
	}
	if rule.Value.Abs().GreaterThanOrEqual(maxRuleValue) {
		return invalid("valor", "is out of range")
	}
	if rule.Scope.CategoryID != nil && *rule.Scope.CategoryID <= 0 {
		return invalid("categoria_id", "must be a positive id")
	}
	return nil
}

// ValidatePrice rejects negative prices on create and manual edit.
func ValidatePrice(price decimal.Decimal) error {
	if price.IsNegative() {
		return invalid("precio", "must not be negative")
	}
	if price.GreaterThanOrEqual(maxPrice) {
		return invalid("precio", "is out of range")
	}
	return nil
}

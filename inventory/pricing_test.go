package inventory_test

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/warp/inventory-engine/inventory"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestApplyRule(t *testing.T) {
	pct := func(v string) inventory.AdjustmentRule {
		return inventory.AdjustmentRule{Kind: inventory.RulePercentage, Value: dec(v)}
	}
	fixed := func(v string) inventory.AdjustmentRule {
		return inventory.AdjustmentRule{Kind: inventory.RuleFixed, Value: dec(v)}
	}

	tests := []struct {
		name  string
		price string
		rule  inventory.AdjustmentRule
		want  string
	}{
		{"percentage increase", "100.00", pct("20"), "120.00"},
		{"percentage decrease", "80.00", pct("-25"), "60.00"},
		{"fractional percentage", "19.99", pct("10"), "21.99"}, // 21.989
		{"fixed decrease", "120.00", fixed("-50"), "70.00"},
		{"fixed increase with cents", "9.95", fixed("0.10"), "10.05"},
		{"zero value is a no-op", "42.42", pct("0"), "42.42"},
		{"half-even rounds down to even", "0.25", pct("-50"), "0.12"}, // 0.125
		{"half-even rounds up to even", "0.27", pct("-50"), "0.14"},   // 0.135
		{"fixed below zero floors", "100.00", fixed("-200"), "0"},
		{"percentage below zero floors", "100.00", pct("-150"), "0"},
		{"exactly zero", "50.00", fixed("-50"), "0"},
		{"unrounded input is rounded once", "1.005", fixed("0"), "1.00"},
		{"unknown kind leaves price", "10.00", inventory.AdjustmentRule{Kind: "bogus", Value: dec("5")}, "10.00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := inventory.ApplyRule(dec(tt.price), tt.rule)
			assert.True(t, got.Equal(dec(tt.want)), "got %s, want %s", got, tt.want)
			assert.LessOrEqual(t, -got.Exponent(), int32(inventory.PriceScale))
		})
	}
}

func TestApplyRule_NeverNegative(t *testing.T) {
	for _, v := range []string{"-100", "-100.01", "-1000", "-99.999"} {
		got := inventory.ApplyRule(dec("0.01"), inventory.AdjustmentRule{Kind: inventory.RulePercentage, Value: dec(v)})
		assert.False(t, got.IsNegative(), "value %s", v)
	}
}

func TestValidateRule(t *testing.T) {
	zero := inventory.CategoryID(0)

	tests := []struct {
		name  string
		rule  inventory.AdjustmentRule
		field string
	}{
		{"missing kind", inventory.AdjustmentRule{Value: dec("1")}, "tipo_ajuste"},
		{"unknown kind", inventory.AdjustmentRule{Kind: "percent", Value: dec("1")}, "tipo_ajuste"},
		{"non-positive category", inventory.AdjustmentRule{Kind: inventory.RuleFixed, Scope: inventory.Scope{CategoryID: &zero}}, "categoria_id"},
		{"too many decimals", inventory.AdjustmentRule{Kind: inventory.RulePercentage, Value: dec("33.33333")}, "valor"},
		{"value too large", inventory.AdjustmentRule{Kind: inventory.RuleFixed, Value: dec("10000000000")}, "valor"},
		{"value too small", inventory.AdjustmentRule{Kind: inventory.RuleFixed, Value: dec("-10000000000")}, "valor"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := inventory.ValidateRule(tt.rule)

			var ve *inventory.ValidationError
			if assert.True(t, errors.As(err, &ve)) {
				assert.Equal(t, tt.field, ve.Field)
			}
			assert.True(t, errors.Is(err, inventory.ErrValidation))
			assert.True(t, inventory.IsClientError(err))
		})
	}

	assert.NoError(t, inventory.ValidateRule(inventory.AdjustmentRule{Kind: inventory.RuleFixed, Value: dec("0")}))
	assert.NoError(t, inventory.ValidateRule(inventory.AdjustmentRule{Kind: inventory.RuleFixed, Value: dec("-9999999999.9999")}))
	assert.NoError(t, inventory.ValidateRule(inventory.AdjustmentRule{Kind: inventory.RulePercentage, Value: dec("33.33330")}))
	assert.NoError(t, inventory.ValidateRule(inventory.AdjustmentRule{
		Kind: inventory.RulePercentage, Value: dec("5"), Scope: inventory.InCategory(3),
	}))
}

func TestValidatePrice(t *testing.T) {
	assert.NoError(t, inventory.ValidatePrice(dec("0")))
	assert.NoError(t, inventory.ValidatePrice(dec("12.34")))
	assert.True(t, errors.Is(inventory.ValidatePrice(dec("-0.01")), inventory.ErrValidation))
	assert.NoError(t, inventory.ValidatePrice(dec("999999999999.99")))
	assert.True(t, errors.Is(inventory.ValidatePrice(dec("1000000000000")), inventory.ErrValidation))
}

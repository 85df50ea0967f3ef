package config

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustDec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("HTTP_ADDR", ":8080")
	t.Setenv("INTERNAL_API_TOKEN", "token")
	t.Setenv("JWT_ISSUER", "autotrader")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("OPERATOR_PASSWORD_HASH", "$2a$10$hash")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "*", cfg.WebSocketOrigin)
	assert.Empty(t, cfg.DBDSN)
	assert.True(t, cfg.InitialCapital.Equal(mustDec("100000")))
	assert.True(t, cfg.MaxPositionFraction.Equal(mustDec("0.1")))
	assert.True(t, cfg.CommissionRate.Equal(mustDec("0.001")))
	assert.True(t, cfg.StopLossPct.Equal(mustDec("0.02")))
	assert.True(t, cfg.TakeProfitPct.Equal(mustDec("0.05")))
	assert.True(t, cfg.MinConfidence.Equal(mustDec("0.7")))
}

func TestLoadMissingRequired(t *testing.T) {
	setRequired(t)
	t.Setenv("JWT_SECRET", "")
	t.Setenv("INTERNAL_API_TOKEN", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")
	assert.Contains(t, err.Error(), "INTERNAL_API_TOKEN")
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("INITIAL_CAPITAL", "250000")
	t.Setenv("MAX_POSITION_FRACTION", "0.25")
	t.Setenv("JWT_TTL", "30m")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.InitialCapital.Equal(mustDec("250000")))
	assert.True(t, cfg.MaxPositionFraction.Equal(mustDec("0.25")))
	assert.Equal(t, "30m0s", cfg.JWTTTL.String())
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{name: "negative_capital", key: "INITIAL_CAPITAL", value: "-1"},
		{name: "fraction_above_one", key: "MAX_POSITION_FRACTION", value: "1.5"},
		{name: "negative_commission", key: "COMMISSION_RATE", value: "-0.001"},
		{name: "garbage_decimal", key: "MIN_CONFIDENCE", value: "high"},
		{name: "garbage_ttl", key: "JWT_TTL", value: "soon"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			setRequired(t)
			t.Setenv(tc.key, tc.value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

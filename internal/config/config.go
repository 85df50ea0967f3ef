package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Config struct {
	HTTPAddr            string
	DBDSN               string
	WebSocketOrigin     string
	InternalToken       string
	JWTIssuer           string
	JWTSecret           string
	JWTTTL              time.Duration
	OperatorHash        string
	InitialCapital      decimal.Decimal
	MaxPositionFraction decimal.Decimal
	CommissionRate      decimal.Decimal
	StopLossPct         decimal.Decimal
	TakeProfitPct       decimal.Decimal
	MinConfidence       decimal.Decimal
}

// Load reads configuration from the environment. DB_DSN is optional: when it
// is empty the service runs against the in-memory store.
func Load() (Config, error) {
	var c Config
	var missing []string

	c.HTTPAddr = os.Getenv("HTTP_ADDR")
	if c.HTTPAddr == "" {
		missing = append(missing, "HTTP_ADDR")
	}
	c.DBDSN = os.Getenv("DB_DSN")
	c.WebSocketOrigin = os.Getenv("WS_ORIGIN")
	if c.WebSocketOrigin == "" {
		c.WebSocketOrigin = "*"
	}
	c.InternalToken = os.Getenv("INTERNAL_API_TOKEN")
	if c.InternalToken == "" {
		missing = append(missing, "INTERNAL_API_TOKEN")
	}
	c.JWTIssuer = os.Getenv("JWT_ISSUER")
	if c.JWTIssuer == "" {
		missing = append(missing, "JWT_ISSUER")
	}
	c.JWTSecret = os.Getenv("JWT_SECRET")
	if c.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	jwtTTL := os.Getenv("JWT_TTL")
	if jwtTTL == "" {
		c.JWTTTL = 12 * time.Hour
	} else {
		d, err := time.ParseDuration(jwtTTL)
		if err != nil {
			return c, errors.New("invalid JWT_TTL: " + err.Error())
		}
		c.JWTTTL = d
	}
	c.OperatorHash = os.Getenv("OPERATOR_PASSWORD_HASH")
	if c.OperatorHash == "" {
		missing = append(missing, "OPERATOR_PASSWORD_HASH")
	}

	var err error
	if c.InitialCapital, err = decimalEnv("INITIAL_CAPITAL", "100000"); err != nil {
		return c, err
	}
	if c.MaxPositionFraction, err = decimalEnv("MAX_POSITION_FRACTION", "0.1"); err != nil {
		return c, err
	}
	if c.CommissionRate, err = decimalEnv("COMMISSION_RATE", "0.001"); err != nil {
		return c, err
	}
	if c.StopLossPct, err = decimalEnv("STOP_LOSS_PCT", "0.02"); err != nil {
		return c, err
	}
	if c.TakeProfitPct, err = decimalEnv("TAKE_PROFIT_PCT", "0.05"); err != nil {
		return c, err
	}
	if c.MinConfidence, err = decimalEnv("MIN_CONFIDENCE", "0.7"); err != nil {
		return c, err
	}
	if c.InitialCapital.LessThanOrEqual(decimal.Zero) {
		return c, errors.New("INITIAL_CAPITAL must be positive")
	}
	if c.MaxPositionFraction.LessThanOrEqual(decimal.Zero) || c.MaxPositionFraction.GreaterThan(decimal.NewFromInt(1)) {
		return c, errors.New("MAX_POSITION_FRACTION must be in (0, 1]")
	}
	if c.CommissionRate.IsNegative() {
		return c, errors.New("COMMISSION_RATE must not be negative")
	}

	if len(missing) > 0 {
		return c, errors.New("missing required env: " + strings.Join(missing, ","))
	}
	return c, nil
}

func decimalEnv(name, fallback string) (decimal.Decimal, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		raw = fallback
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, errors.New("invalid " + name + ": " + err.Error())
	}
	return v, nil
}

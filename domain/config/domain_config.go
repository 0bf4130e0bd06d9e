package config

import (
	"os"
	"strconv"

	"github.com/shopspring/decimal"
)

// DomainConfig holds the configurable business rules shared by the services.
type DomainConfig struct {
	// Reservation lifecycle
	ReturnDueDateDays     int
	ReservationFee        decimal.Decimal
	LateFeePerDay         decimal.Decimal
	MaxActiveReservations int

	// Query limits
	PaginationDefaultLimit int
	PaginationMaxLimit     int
}

// DefaultDomainConfig returns the default domain configuration.
func DefaultDomainConfig() *DomainConfig {
	return &DomainConfig{
		ReturnDueDateDays:      5,
		ReservationFee:         decimal.NewFromInt(3),
		LateFeePerDay:          decimal.RequireFromString("0.2"),
		MaxActiveReservations:  5,
		PaginationDefaultLimit: 10,
		PaginationMaxLimit:     100,
	}
}

// LoadDomainConfig loads the domain configuration from the environment,
// falling back to defaults for anything unset or malformed.
func LoadDomainConfig() *DomainConfig {
	cfg := DefaultDomainConfig()

	cfg.ReturnDueDateDays = getEnvInt("BOOK_RETURN_DUE_DATE_DAYS", cfg.ReturnDueDateDays)
	cfg.MaxActiveReservations = getEnvInt("MAX_ACTIVE_RESERVATIONS", cfg.MaxActiveReservations)
	cfg.PaginationDefaultLimit = getEnvInt("PAGINATION_DEFAULT_LIMIT", cfg.PaginationDefaultLimit)
	cfg.PaginationMaxLimit = getEnvInt("PAGINATION_MAX_LIMIT", cfg.PaginationMaxLimit)
	cfg.ReservationFee = getEnvDecimal("BOOK_RESERVATION_FEE", cfg.ReservationFee)
	cfg.LateFeePerDay = getEnvDecimal("LATE_FEE_PER_DAY", cfg.LateFeePerDay)

	return cfg
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil && intVal > 0 {
			return intVal
		}
	}
	return defaultValue
}

func getEnvDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if d, err := decimal.NewFromString(value); err == nil && !d.IsNegative() {
			return d
		}
	}
	return defaultValue
}

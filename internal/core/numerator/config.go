// Package numerator provides domain contracts for document auto-numbering.
package numerator

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ResetPeriod controls when a sequence restarts at 1.
type ResetPeriod string

const (
	ResetDaily  ResetPeriod = "day"
	ResetYearly ResetPeriod = "year"
	ResetNever  ResetPeriod = "never"
)

// Config holds numbering configuration.
type Config struct {
	// Prefix added to all numbers (e.g., "RCV")
	Prefix string

	// PadWidth is the minimum number width (default 4)
	PadWidth int

	// ResetPeriod: day, year, never
	ResetPeriod ResetPeriod
}

// ReceiptConfig numbers receipts RCV-YYYYMMDD-NNNN, restarting every UTC day.
func ReceiptConfig() Config {
	return Config{
		Prefix:      "RCV",
		PadWidth:    4,
		ResetPeriod: ResetDaily,
	}
}

// PeriodKey identifies the sequence bucket for period.
func (c Config) PeriodKey(period time.Time) string {
	period = period.UTC()
	switch c.ResetPeriod {
	case ResetDaily:
		return period.Format("20060102")
	case ResetYearly:
		return period.Format("2006")
	default:
		return ""
	}
}

// Format renders the final number string.
func (c Config) Format(period time.Time, num int64) string {
	padWidth := c.PadWidth
	if padWidth == 0 {
		padWidth = 4
	}
	if key := c.PeriodKey(period); key != "" {
		return fmt.Sprintf("%s-%s-%0*d", c.Prefix, key, padWidth, num)
	}
	return fmt.Sprintf("%s-%0*d", c.Prefix, padWidth, num)
}

// ParseNumber extracts the sequence part of a formatted number.
// Returns -1 if parsing fails.
func ParseNumber(formatted string) int64 {
	i := strings.LastIndexByte(formatted, '-')
	if i < 0 || i == len(formatted)-1 {
		return -1
	}
	num, err := strconv.ParseInt(formatted[i+1:], 10, 64)
	if err != nil || num < 0 {
		return -1
	}
	return num
}

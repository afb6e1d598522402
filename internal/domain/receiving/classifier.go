package receiving

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Finding is one discrepancy detected on a receipt line.
type Finding struct {
	Type             ExceptionType
	Severity         Severity
	QuantityAffected int64
	Description      string
}

// threshold maps a minimum affected fraction (inclusive) to a severity.
type threshold struct {
	min      decimal.Decimal
	severity Severity
}

var (
	shortageThresholds = []threshold{
		{decimal.RequireFromString("0.5"), SeverityHigh},
		{decimal.RequireFromString("0.2"), SeverityMedium},
	}
	damageThresholds = []threshold{
		{decimal.RequireFromString("0.3"), SeverityHigh},
		{decimal.RequireFromString("0.1"), SeverityMedium},
	}
	// Quality rejects never drop below medium.
	rejectThresholds = []threshold{
		{decimal.RequireFromString("0.3"), SeverityCritical},
		{decimal.RequireFromString("0.1"), SeverityHigh},
	}

	hundred = decimal.NewFromInt(100)
)

// Classify returns the discrepancies of one line, in a fixed order:
// short shipment, damaged, quality reject, overage. Lines with nothing
// expected are not classified.
func Classify(line LineInput) []Finding {
	expected := line.QuantityExpected
	if expected <= 0 {
		return nil
	}

	var out []Finding
	total, _ := line.Received()

	if shortfall := expected - total; shortfall > 0 {
		out = append(out, Finding{
			Type:             ExceptionShortShipment,
			Severity:         grade(shortfall, expected, shortageThresholds, SeverityLow),
			QuantityAffected: shortfall,
			Description:      fmt.Sprintf("Short shipment: %d of %d units missing (%s%%)", shortfall, expected, percent(shortfall, expected)),
		})
	}

	if damaged := line.QuantityDamaged; damaged > 0 {
		out = append(out, Finding{
			Type:             ExceptionDamaged,
			Severity:         grade(damaged, expected, damageThresholds, SeverityLow),
			QuantityAffected: damaged,
			Description:      fmt.Sprintf("Damaged: %d of %d units (%s%%)", damaged, expected, percent(damaged, expected)),
		})
	}

	if rejected := line.QuantityRejected; rejected > 0 {
		out = append(out, Finding{
			Type:             ExceptionQualityReject,
			Severity:         grade(rejected, expected, rejectThresholds, SeverityMedium),
			QuantityAffected: rejected,
			Description:      fmt.Sprintf("Quality reject: %d of %d units (%s%%)", rejected, expected, percent(rejected, expected)),
		})
	}

	if overage := total - expected; overage > 0 {
		out = append(out, Finding{
			Type:             ExceptionOverage,
			Severity:         SeverityLow,
			QuantityAffected: overage,
			Description:      fmt.Sprintf("Overage: %d units above the %d expected", overage, expected),
		})
	}

	return out
}

// grade compares affected/expected against thresholds without dividing,
// so boundaries are exact.
func grade(affected, expected int64, thresholds []threshold, floor Severity) Severity {
	a := decimal.NewFromInt(affected)
	e := decimal.NewFromInt(expected)
	for _, t := range thresholds {
		if a.GreaterThanOrEqual(t.min.Mul(e)) {
			return t.severity
		}
	}
	return floor
}

func percent(affected, expected int64) string {
	return decimal.NewFromInt(affected).Mul(hundred).
		DivRound(decimal.NewFromInt(expected), 1).StringFixed(1)
}

// DeriveStatus computes a receipt's status from its lines and the number of
// exceptions raised for it.
func DeriveStatus(lines []LineInput, exceptions int) ReceiptStatus {
	if exceptions > 0 {
		return ReceiptException
	}
	for _, l := range lines {
		if l.QuantityAccepted < l.QuantityExpected {
			return ReceiptPartial
		}
	}
	return ReceiptComplete
}

package billing

// familyDiscountBps computes the effective discount in basis points for a
// family of the given size (the member counts toward the size). The plan's
// base percent is scaled by (size-1)/size so larger households earn a deeper
// discount that asymptotically approaches the full base percent.
func familyDiscountBps(basePercent, familySize int) int64 {
	if basePercent <= 0 || familySize <= 1 {
		return 0
	}
	return int64(basePercent) * 100 * int64(familySize-1) / int64(familySize)
}

// ApplyFamilyDiscount discounts a cent amount for the given family size and
// returns the discounted amount plus the cents saved. Amounts are floored to
// the cent; the member never pays a rounded-up fraction.
func ApplyFamilyDiscount(amountCents int64, basePercent, familySize int) (discounted, saved int64) {
	bps := familyDiscountBps(basePercent, familySize)
	if bps == 0 {
		return amountCents, 0
	}
	discounted = amountCents * (10000 - bps) / 10000
	return discounted, amountCents - discounted
}

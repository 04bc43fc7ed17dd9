package market

import "github.com/shopspring/decimal"

// FeeSchedule computes platform, referral and dispute fees from a sale
// price. Rates are basis points; per-currency overrides apply to the
// platform fee only. The referral commission uses one rate regardless
// of currency and is drawn from the platform fee, not added on top.
type FeeSchedule struct {
	PlatformBps int64
	CurrencyBps map[string]int64
	ReferralBps int64
	DisputeBps  int64
}

// DefaultFeeSchedule is 5% platform fee, 1% referral commission and
// 2.5% dispute fee.
func DefaultFeeSchedule() FeeSchedule {
	return FeeSchedule{
		PlatformBps: 500,
		ReferralBps: 100,
		DisputeBps:  250,
	}
}

func bpsOf(amount decimal.Decimal, bps int64) decimal.Decimal {
	return amount.Mul(decimal.New(bps, 0)).Div(decimal.New(10000, 0)).Round(8)
}

// PlatformFee returns the platform's cut of a sale in the given
// currency.
func (f FeeSchedule) PlatformFee(amount decimal.Decimal, currency string) decimal.Decimal {
	bps := f.PlatformBps
	if override, ok := f.CurrencyBps[currency]; ok {
		bps = override
	}
	return bpsOf(amount, bps)
}

// ReferralCommission returns the one-time commission paid to a
// referrer on the referred user's first completed transaction.
func (f FeeSchedule) ReferralCommission(amount decimal.Decimal) decimal.Decimal {
	return bpsOf(amount, f.ReferralBps)
}

// DisputeFee returns the fee charged for opening a dispute.
func (f FeeSchedule) DisputeFee(amount decimal.Decimal) decimal.Decimal {
	return bpsOf(amount, f.DisputeBps)
}

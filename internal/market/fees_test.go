package market

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestFeeSchedule_PlatformFee(t *testing.T) {
	fees := FeeSchedule{
		PlatformBps: 500,
		CurrencyBps: map[string]int64{"ETH": 300},
	}

	tests := []struct {
		name     string
		amount   string
		currency string
		want     string
	}{
		{"DefaultRate", "100", "USD", "5"},
		{"CurrencyOverride", "100", "ETH", "3"},
		{"FractionalAmount", "7", "USD", "0.35"},
		{"RoundsToEightPlaces", "0.00000001", "USD", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			amount, err := decimal.NewFromString(tt.amount)
			if err != nil {
				t.Fatalf("bad amount: %v", err)
			}
			got := fees.PlatformFee(amount, tt.currency)
			if want, _ := decimal.NewFromString(tt.want); !got.Equal(want) {
				t.Errorf("PlatformFee(%s, %s) = %s, want %s", tt.amount, tt.currency, got, tt.want)
			}
		})
	}
}

func TestFeeSchedule_ReferralCommission(t *testing.T) {
	fees := DefaultFeeSchedule()

	price := decimal.NewFromInt(1000)
	commission := fees.ReferralCommission(price)
	if want := decimal.NewFromInt(10); !commission.Equal(want) {
		t.Errorf("ReferralCommission(1000) = %s, want %s", commission, want)
	}

	// The commission is drawn from the platform fee, so it must never
	// exceed it at the default rates.
	if commission.GreaterThan(fees.PlatformFee(price, "USD")) {
		t.Error("referral commission exceeds platform fee")
	}
}

func TestFeeSchedule_DisputeFee(t *testing.T) {
	fees := DefaultFeeSchedule()
	got := fees.DisputeFee(decimal.NewFromInt(200))
	if want := decimal.NewFromInt(5); !got.Equal(want) {
		t.Errorf("DisputeFee(200) = %s, want %s", got, want)
	}
}

func TestRequiredMajority(t *testing.T) {
	tests := []struct {
		partners int
		want     int
	}{
		{1, 1},
		{2, 2},
		{3, 2},
		{4, 3},
		{5, 3},
		{10, 6},
	}
	for _, tt := range tests {
		if got := RequiredMajority(tt.partners); got != tt.want {
			t.Errorf("RequiredMajority(%d) = %d, want %d", tt.partners, got, tt.want)
		}
	}
}

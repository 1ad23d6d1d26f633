package wallet

import "testing"

func TestFeeFor(t *testing.T) {
	cases := []struct {
		name   string
		amount int64
		want   int64
	}{
		{"minimum withdrawal", 2000, 100},
		{"top of first tier", 9_999, 100},
		{"bottom of second tier", 10_000, 150},
		{"top of second tier", 49_999, 150},
		{"bottom of third tier", 50_000, 200},
		{"top of third tier", 99_999, 200},
		{"bottom of fourth tier", 100_000, 250},
		{"top of fourth tier", 200_000, 250},
		{"above all bounds", 200_001, 300},
		{"very large", 5_000_000, 300},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := FeeFor(tc.amount); got != tc.want {
				t.Errorf("FeeFor(%d) = %d, want %d", tc.amount, got, tc.want)
			}
		})
	}
}

func TestFeeForMonotonic(t *testing.T) {
	prev := int64(0)
	for amount := int64(MinWithdrawal); amount <= 300_000; amount += 500 {
		fee := FeeFor(amount)
		if fee < prev {
			t.Fatalf("fee decreased at amount %d: %d -> %d", amount, prev, fee)
		}
		prev = fee
	}
}

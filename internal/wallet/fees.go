package wallet

// MinWithdrawal is the smallest amount a user may withdraw, in naira.
const MinWithdrawal = 2000

type feeTier struct {
	upTo int64 // inclusive upper bound, 0 means unbounded
	fee  int64
}

// Tiers are checked in order; the first bound the amount fits under wins.
var feeTiers = []feeTier{
	{upTo: 9_999, fee: 100},
	{upTo: 49_999, fee: 150},
	{upTo: 99_999, fee: 200},
	{upTo: 200_000, fee: 250},
	{upTo: 0, fee: 300},
}

// FeeFor returns the processing fee for a withdrawal of the given
// amount in naira. Amounts below MinWithdrawal are rejected before fee
// calculation, so FeeFor assumes amount >= MinWithdrawal.
func FeeFor(amount int64) int64 {
	for _, t := range feeTiers {
		if t.upTo == 0 || amount <= t.upTo {
			return t.fee
		}
	}
	return feeTiers[len(feeTiers)-1].fee
}

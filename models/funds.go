package models

// Funds is a quantity of the staked asset being moved between a holder and a
// market pool. Moving funds empties the source value.
type Funds struct {
	amount uint64
}

// NewFunds wraps amount units of the asset.
func NewFunds(amount uint64) Funds {
	return Funds{amount: amount}
}

// Amount returns the number of units held.
func (f Funds) Amount() uint64 {
	return f.amount
}

// IsZero reports whether no units are held.
func (f Funds) IsZero() bool {
	return f.amount == 0
}

// Take empties f and returns what it held.
func (f *Funds) Take() uint64 {
	a := f.amount
	f.amount = 0
	return a
}

package accounts

import "github.com/shopspring/decimal"

// allocationPlan is one planned allocation row, produced before any
// ledger mutation so a failing validation applies nothing.
type allocationPlan struct {
	TransactionID int64
	Amount        decimal.Decimal
}

// allocateFIFO distributes a payment across open charges ordered
// oldest-first, until either the payment or the charges are exhausted.
// The second return value is the remainder left unallocated.
func allocateFIFO(amount decimal.Decimal, charges []OpenCharge) ([]allocationPlan, decimal.Decimal) {
	remaining := amount
	var plans []allocationPlan
	for _, charge := range charges {
		if !remaining.IsPositive() {
			break
		}
		outstanding := charge.Outstanding()
		if !outstanding.IsPositive() {
			continue
		}
		applied := decimal.Min(remaining, outstanding)
		plans = append(plans, allocationPlan{
			TransactionID: charge.Transaction.ID,
			Amount:        applied,
		})
		remaining = remaining.Sub(applied)
	}
	return plans, remaining
}

// planExplicit validates caller-supplied allocation pairs against the
// referenced transactions. Every pair must target a charge of the same
// account, be positive, and stay within the charge's outstanding
// amount. Pairs targeting the same charge accumulate.
func planExplicit(accountID int64, pairs []AllocationPair, byID map[int64]OpenCharge) ([]allocationPlan, error) {
	applied := make(map[int64]decimal.Decimal, len(pairs))
	plans := make([]allocationPlan, 0, len(pairs))
	for _, pair := range pairs {
		if !pair.Amount.IsPositive() {
			return nil, ErrAllocationNotPositive
		}
		charge, ok := byID[pair.TransactionID]
		if !ok {
			return nil, ErrNotFound
		}
		if charge.Transaction.AccountID != accountID {
			return nil, ErrWrongAccount
		}
		if charge.Transaction.Type != TransactionTypeCharge {
			return nil, ErrNotACharge
		}
		total := applied[pair.TransactionID].Add(pair.Amount)
		if total.GreaterThan(charge.Outstanding()) {
			return nil, ErrOverAllocation
		}
		applied[pair.TransactionID] = total
		plans = append(plans, allocationPlan{TransactionID: pair.TransactionID, Amount: pair.Amount})
	}
	return plans, nil
}

// Package analytics answers the fixed set of aggregation queries over a loaded
// transaction collection.
//
// Queries 1-3, 6 and 9 look at a de-duplicated view that keeps the first record seen
// for each MTN; the client, issue and top-sender queries look at every record. Callers
// depend on that split, so it must not be harmonised.
package analytics

import (
	"cmp"
	"slices"

	"txnstats/internal/core"
)

// Top3 is the size of the default amount ranking.
const Top3 = 3

// Engine holds an immutable snapshot of the collection. It is safe for concurrent use.
type Engine struct {
	txns []core.Transaction
}

// NewEngine snapshots txns; later changes to the caller's slice are not observed.
func NewEngine(txns []core.Transaction) *Engine {
	return &Engine{txns: slices.Clone(txns)}
}

// Len returns the number of records, duplicates included.
func (e *Engine) Len() int {
	return len(e.txns)
}

// Transactions returns a copy of the collection in its original order.
func (e *Engine) Transactions() []core.Transaction {
	return slices.Clone(e.txns)
}

// firstByMTN keeps the first record per MTN, in iteration order, among records that
// satisfy keep. A nil keep accepts everything.
func firstByMTN(txns []core.Transaction, keep func(core.Transaction) bool) []core.Transaction {
	seen := make(map[int64]struct{}, len(txns))
	out := make([]core.Transaction, 0, len(txns))
	for _, t := range txns {
		if keep != nil && !keep(t) {
			continue
		}
		if _, dup := seen[t.MTN]; dup {
			continue
		}
		seen[t.MTN] = struct{}{}
		out = append(out, t)
	}
	return out
}

func sumAmounts(txns []core.Transaction) float64 {
	var total float64
	for _, t := range txns {
		total += t.Amount
	}
	return total
}

// TotalTransactionAmount sums the amount of the first record for each MTN.
func (e *Engine) TotalTransactionAmount() float64 {
	return sumAmounts(firstByMTN(e.txns, nil))
}

// TotalTransactionAmountSentBy sums, per MTN, the first record sent by senderFullName.
// The name match is exact.
func (e *Engine) TotalTransactionAmountSentBy(senderFullName string) float64 {
	return sumAmounts(firstByMTN(e.txns, func(t core.Transaction) bool {
		return t.SenderFullName.Is(senderFullName)
	}))
}

// MaxTransactionAmount returns the largest amount in the de-duplicated view, or 0 when
// there are no records.
func (e *Engine) MaxTransactionAmount() float64 {
	unique := firstByMTN(e.txns, nil)
	if len(unique) == 0 {
		return 0
	}
	return slices.MaxFunc(unique, func(a, b core.Transaction) int {
		return cmp.Compare(a.Amount, b.Amount)
	}).Amount
}

// CountUniqueClients counts distinct sender and beneficiary names across every record.
func (e *Engine) CountUniqueClients() int {
	clients := make(map[string]struct{})
	for _, t := range e.txns {
		if name, ok := t.SenderFullName.Get(); ok {
			clients[name] = struct{}{}
		}
		if name, ok := t.BeneficiaryFullName.Get(); ok {
			clients[name] = struct{}{}
		}
	}
	return len(clients)
}

// HasOpenComplianceIssues reports whether any record involving clientFullName, as
// sender or beneficiary, carries an unsolved issue.
func (e *Engine) HasOpenComplianceIssues(clientFullName string) bool {
	return slices.ContainsFunc(e.txns, func(t core.Transaction) bool {
		return t.HasClient(clientFullName) && t.HasOpenIssue()
	})
}

// TransactionsByBeneficiaryName groups the de-duplicated view by beneficiary name.
func (e *Engine) TransactionsByBeneficiaryName() Groups {
	return groupBy(firstByMTN(e.txns, nil), func(t core.Transaction) core.Optional[string] {
		return t.BeneficiaryFullName
	})
}

// UnsolvedIssueIDs returns the distinct ids of every open issue, ascending.
func (e *Engine) UnsolvedIssueIDs() []int64 {
	seen := make(map[int64]struct{})
	ids := make([]int64, 0)
	for _, t := range e.txns {
		if !t.HasOpenIssue() {
			continue
		}
		id, _ := t.IssueID.Get()
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// AllSolvedIssueMessages lists, in collection order, the message of every record whose
// issue is marked solved and carries a message.
func (e *Engine) AllSolvedIssueMessages() []string {
	msgs := make([]string, 0)
	for _, t := range e.txns {
		if !t.IssueSolved {
			continue
		}
		if msg, ok := t.IssueMessage.Get(); ok {
			msgs = append(msgs, msg)
		}
	}
	return msgs
}

// Top3TransactionsByAmount returns the three largest de-duplicated records.
func (e *Engine) Top3TransactionsByAmount() []core.Transaction {
	return e.TopTransactionsByAmount(Top3)
}

// TopTransactionsByAmount returns up to n de-duplicated records by amount, descending.
// Equal amounts keep their original relative order.
func (e *Engine) TopTransactionsByAmount(n int) []core.Transaction {
	if n <= 0 {
		return []core.Transaction{}
	}
	unique := firstByMTN(e.txns, nil)
	slices.SortStableFunc(unique, func(a, b core.Transaction) int {
		return cmp.Compare(b.Amount, a.Amount)
	})
	if len(unique) > n {
		unique = unique[:n]
	}
	return slices.Clip(unique)
}

// SenderTotals sums amounts per sender over every record, in first-seen order.
// Records without a sender name are not counted.
func (e *Engine) SenderTotals() []core.SenderTotal {
	index := make(map[string]int)
	totals := make([]core.SenderTotal, 0)
	for _, t := range e.txns {
		name, ok := t.SenderFullName.Get()
		if !ok {
			continue
		}
		i, seen := index[name]
		if !seen {
			i = len(totals)
			index[name] = i
			totals = append(totals, core.SenderTotal{Name: name})
		}
		totals[i].Amount += t.Amount
	}
	return totals
}

// TopSender returns the sender with the largest summed amount over every record.
// On a tie the sender seen first keeps the title. ok is false when nobody sent anything.
func (e *Engine) TopSender() (name string, ok bool) {
	totals := e.SenderTotals()
	if len(totals) == 0 {
		return "", false
	}
	best := totals[0]
	for _, st := range totals[1:] {
		if st.Amount > best.Amount {
			best = st
		}
	}
	return best.Name, true
}

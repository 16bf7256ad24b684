package analytics

import "txnstats/internal/core"

// BeneficiaryGroup is the records sharing one beneficiary name. An absent name is a
// key of its own.
type BeneficiaryGroup struct {
	Beneficiary  core.Optional[string] `json:"beneficiary"`
	Transactions []core.Transaction    `json:"transactions"`
}

// Groups is an ordered mapping: groups appear in the order their key was first seen.
type Groups []BeneficiaryGroup

// Len returns the number of distinct keys.
func (g Groups) Len() int {
	return len(g)
}

// Find returns the records for key.
func (g Groups) Find(key core.Optional[string]) ([]core.Transaction, bool) {
	for _, grp := range g {
		if grp.Beneficiary == key {
			return grp.Transactions, true
		}
	}
	return nil, false
}

// Lookup returns the records for a present beneficiary name.
func (g Groups) Lookup(name string) ([]core.Transaction, bool) {
	return g.Find(core.Some(name))
}

// Keys returns the grouping keys in first-seen order.
func (g Groups) Keys() []core.Optional[string] {
	keys := make([]core.Optional[string], len(g))
	for i, grp := range g {
		keys[i] = grp.Beneficiary
	}
	return keys
}

func groupBy(txns []core.Transaction, key func(core.Transaction) core.Optional[string]) Groups {
	index := make(map[core.Optional[string]]int)
	groups := make(Groups, 0)
	for _, t := range txns {
		k := key(t)
		i, ok := index[k]
		if !ok {
			i = len(groups)
			index[k] = i
			groups = append(groups, BeneficiaryGroup{Beneficiary: k})
		}
		groups[i].Transactions = append(groups[i].Transactions, t)
	}
	return groups
}

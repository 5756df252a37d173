// Package accounts maps bank account ids onto ledger accounts.
package accounts

import (
	"sort"

	"github.com/dvloznov/finance-bridge/internal/config"
)

// Mapping is the ledger side of a configured account.
type Mapping = config.AccountMapping

// Resolver is an immutable lookup table built once at startup.
type Resolver struct {
	accounts map[string]Mapping
}

// NewResolver copies the configured table so later changes to the source map
// cannot leak in.
func NewResolver(accounts map[string]Mapping) *Resolver {
	copied := make(map[string]Mapping, len(accounts))
	for uid, m := range accounts {
		copied[uid] = m
	}
	return &Resolver{accounts: copied}
}

// Resolve returns the mapping for a provider account uid. A miss is normal:
// unmapped accounts are intentionally excluded from sync.
func (r *Resolver) Resolve(providerAccountUID string) (Mapping, bool) {
	m, ok := r.accounts[providerAccountUID]
	return m, ok
}

// Len returns the number of mapped accounts.
func (r *Resolver) Len() int {
	return len(r.accounts)
}

// ProviderAccounts returns the mapped provider account uids, sorted.
func (r *Resolver) ProviderAccounts() []string {
	uids := make([]string, 0, len(r.accounts))
	for uid := range r.accounts {
		uids = append(uids, uid)
	}
	sort.Strings(uids)
	return uids
}

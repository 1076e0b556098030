package ledger

// Rent parameters for the minimum-retained-balance floor. A funded account
// must keep at least MinimumBalance(len(data)) lamports to remain valid, and
// no operation may take it below that.
const (
	accountStorageOverhead = 128
	lamportsPerByteYear    = 3480
	rentExemptionYears     = 2
)

// MinimumBalance returns the rent floor for an account holding dataLen bytes.
func MinimumBalance(dataLen int) uint64 {
	return uint64(accountStorageOverhead+dataLen) * lamportsPerByteYear * rentExemptionYears
}

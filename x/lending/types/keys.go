package types

const (
	// ModuleName is the name of the lending module
	ModuleName = "lending"

	// StoreKey is the store key for the lending module
	StoreKey = ModuleName
)

// SecondsPerYear is the accrual time base for annualized rates
const SecondsPerYear = 31_536_000

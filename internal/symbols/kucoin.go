package symbols

import "strings"

// NormalizeKucoinSymbol converts KuCoin futures symbols to a common format.
// Examples:
//
//	XBTUSDTM -> BTCUSDT
//	ETHUSDTM -> ETHUSDT
//
// The function removes dashes, trims trailing 'M', and maps XBT->BTC.
func NormalizeKucoinSymbol(sym string) string {
	// remove dashes
	sym = strings.ReplaceAll(sym, "-", "")
	// trim trailing 'M' denoting futures
	sym = strings.TrimSuffix(sym, "M")
	// map XBT to BTC for compatibility
	if strings.HasPrefix(sym, "XBT") {
		sym = "BTC" + sym[3:]
	}
	return sym
}

// KucoinContract converts a canonical symbol to the KuCoin linear futures
// contract name. Bitcoin trades as XBT on KuCoin and USDT-margined
// contracts carry an M suffix.
// Examples:
//
//	BTCUSDT -> XBTUSDTM
//	ETHUSDT -> ETHUSDTM
func KucoinContract(sym string) string {
	if strings.HasPrefix(sym, "BTC") {
		sym = "XBT" + sym[3:]
	}
	return sym + "M"
}

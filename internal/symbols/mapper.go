package symbols

import "strings"

// Canonical converts venue-specific futures symbols to the binance-style
// form used throughout the engine: uppercase, no separators, BTC instead of
// XBT, no contract suffixes or multiplier prefixes.
// Currently supported exchanges: binance, bybit, kucoin.
func Canonical(exchange, sym string) string {
	sym = strings.ToUpper(strings.TrimSpace(sym))
	switch strings.ToLower(exchange) {
	case "binance":
		switch sym {
		case "1000BONKUSDT":
			sym = "BONKUSDT"
		case "1000PEPEUSDT":
			sym = "PEPEUSDT"
		case "1000SHIBUSDT":
			sym = "SHIBUSDT"
		}
	case "bybit":
		switch sym {
		case "1000BONKUSDT":
			sym = "BONKUSDT"
		case "1000PEPEUSDT":
			sym = "PEPEUSDT"
		case "SHIB1000USDT":
			sym = "SHIBUSDT"
		}
	case "kucoin":
		sym = NormalizeKucoinSymbol(sym)
	default:
		// others already use the desired format
	}
	return sym
}

// ForExchange converts a canonical symbol to the venue-native form expected
// in REST requests. It is the inverse of Canonical for the supported venues.
func ForExchange(exchange, sym string) string {
	switch strings.ToLower(exchange) {
	case "binance":
		switch sym {
		case "BONKUSDT":
			return "1000BONKUSDT"
		case "PEPEUSDT":
			return "1000PEPEUSDT"
		case "SHIBUSDT":
			return "1000SHIBUSDT"
		}
	case "bybit":
		switch sym {
		case "BONKUSDT":
			return "1000BONKUSDT"
		case "PEPEUSDT":
			return "1000PEPEUSDT"
		case "SHIBUSDT":
			return "SHIB1000USDT"
		}
	case "kucoin":
		return KucoinContract(sym)
	}
	return sym
}

package exchange

import (
	"fmt"
	"strings"
)

// symbolMap translates between the canonical BASE/QUOTE form and a venue's
// own pair naming.
type symbolMap struct {
	toVenue   map[string]string
	fromVenue map[string]string
}

func newSymbolMap(symbols []string, convert func(base, quote string) string) (*symbolMap, error) {
	m := &symbolMap{
		toVenue:   make(map[string]string, len(symbols)),
		fromVenue: make(map[string]string, len(symbols)),
	}
	for _, s := range symbols {
		base, quote, ok := strings.Cut(s, "/")
		if !ok || base == "" || quote == "" {
			return nil, fmt.Errorf("symbol %q is not BASE/QUOTE", s)
		}
		v := convert(base, quote)
		m.toVenue[s] = v
		m.fromVenue[v] = s
	}
	return m, nil
}

func (m *symbolMap) venue(symbol string) string { return m.toVenue[symbol] }

func (m *symbolMap) canonical(venue string) (string, bool) {
	s, ok := m.fromVenue[venue]
	return s, ok
}

func (m *symbolMap) venues() []string {
	out := make([]string, 0, len(m.toVenue))
	for _, v := range m.toVenue {
		out = append(out, v)
	}
	return out
}

// binancePair: BTC/USDT -> BTCUSDT.
func binancePair(base, quote string) string {
	return strings.ToUpper(base + quote)
}

// krakenAliases covers the legacy asset codes Kraken still uses on ws v1.
var krakenAliases = map[string]string{
	"BTC":  "XBT",
	"DOGE": "XDG",
}

// krakenPair: BTC/USDT -> XBT/USDT.
func krakenPair(base, quote string) string {
	base, quote = strings.ToUpper(base), strings.ToUpper(quote)
	if a, ok := krakenAliases[base]; ok {
		base = a
	}
	if a, ok := krakenAliases[quote]; ok {
		quote = a
	}
	return base + "/" + quote
}

package handlers

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopmux/shopmux/internal/store"
)

var (
	btcPattern    = regexp.MustCompile(`^(1|3|bc1)[a-zA-Z0-9]{24,60}$`)
	ltcPattern    = regexp.MustCompile(`^(L|M|ltc1)[a-zA-Z0-9]{24,60}$`)
	ethPattern    = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
	solPattern    = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]{32,44}$`)
	emailPattern  = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	tokenPattern  = regexp.MustCompile(`^\d{6,12}:[A-Za-z0-9_-]{30,}$`)
	numberCleaner = strings.NewReplacer(",", ".", " ", "")
)

// validPrice parses a user-entered price. Accepts "9,99" since half the
// world types decimals that way.
func validPrice(text string) (float64, bool) {
	v, err := strconv.ParseFloat(numberCleaner.Replace(strings.TrimSpace(text)), 64)
	if err != nil || v <= 0 || v > 1_000_000 {
		return 0, false
	}
	return v, true
}

// validProductName bounds the name length.
func validProductName(text string) (string, bool) {
	name := strings.TrimSpace(text)
	if len(name) < 2 || len(name) > 100 {
		return "", false
	}
	return name, true
}

// validPayment checks a payment value's shape for the given profile field.
// Shape only: nothing here proves the address exists.
func validPayment(field, value string) bool {
	value = strings.TrimSpace(value)
	switch field {
	case store.PayBTC:
		return btcPattern.MatchString(value)
	case store.PayLTC:
		return ltcPattern.MatchString(value)
	case store.PayETH:
		return ethPattern.MatchString(value)
	case store.PaySOL:
		return solPattern.MatchString(value)
	case store.PayPayPal:
		return emailPattern.MatchString(value)
	}
	return false
}

// validTokenFormat is the offline check before the live platform check.
func validTokenFormat(token string) bool {
	return tokenPattern.MatchString(strings.TrimSpace(token))
}

// parseUnits splits a pasted inventory block into units, one per line,
// dropping blanks.
func parseUnits(text string) []string {
	var units []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			units = append(units, line)
		}
	}
	return units
}

// paymentLabel is the display name for a payment field.
func paymentLabel(field string) string {
	switch field {
	case store.PayBTC:
		return "BTC"
	case store.PayLTC:
		return "LTC"
	case store.PayETH:
		return "ETH"
	case store.PaySOL:
		return "SOL"
	case store.PayPayPal:
		return "PayPal"
	}
	return field
}

// paymentLines renders a profile's configured payment methods for buyers.
func paymentLines(p *store.Profile) string {
	var b strings.Builder
	for _, field := range []string{store.PayBTC, store.PayLTC, store.PayETH, store.PaySOL, store.PayPayPal} {
		if v := p.PaymentMethod(field); v != "" {
			fmt.Fprintf(&b, "%s: %s\n", paymentLabel(field), v)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

package cost

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	thousandsUnit   = 1000
	thousandsSuffix = "K"
)

// FormatTokens renders a token count for display. Counts of one thousand and
// above appear in thousands with one decimal place, trimming a trailing .0.
func FormatTokens(tokenCount int) string {
	if tokenCount < 0 {
		return "0"
	}
	if tokenCount < thousandsUnit {
		return strconv.Itoa(tokenCount)
	}
	formatted := fmt.Sprintf("%.1f", float64(tokenCount)/float64(thousandsUnit))
	formatted = strings.TrimSuffix(formatted, ".0")
	return formatted + thousandsSuffix
}

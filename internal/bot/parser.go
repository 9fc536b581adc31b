package bot

import (
	"errors"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// parseAmount принимает и запятую, и точку как разделитель.
func parseAmount(s string) (decimal.Decimal, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	a, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, errors.New("bad amount")
	}
	a = a.Round(2)
	if !a.IsPositive() {
		return decimal.Decimal{}, errors.New("amount must be positive")
	}
	return a, nil
}

// parsePage извлекает номер страницы из "history_page_<n>".
func parsePage(data string) int {
	i := strings.LastIndexByte(data, '_')
	if i < 0 {
		return 0
	}
	n, err := strconv.Atoi(data[i+1:])
	if err != nil || n < 0 {
		return 0
	}
	return n
}

package lightning

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcutil/bech32"
	"github.com/pkg/errors"
)

var (
	ErrInvalidInvoice = errors.New("invalid payment request")
	ErrAmountMismatch = errors.New("invoice amount mismatch")
)

// префиксы от длинных к коротким, иначе lnbc поглотит lnbcrt
var networkPrefixes = []string{"lnbcrt", "lntbs", "lntb", "lnbc", "lnmem"}

var addressRe = regexp.MustCompile(`^[a-z0-9._\-+]+@[a-z0-9\-]+(\.[a-z0-9\-]+)+$`)

// PaymentRequest разобранный инвойс или lightning-адрес
type PaymentRequest struct {
	Network   string
	AmountSat int64
	Address   bool
}

// ParsePaymentRequest разбирает BOLT-11 инвойс или lightning-адрес.
func ParsePaymentRequest(req string) (*PaymentRequest, error) {
	req = strings.ToLower(strings.TrimSpace(req))
	req = strings.TrimPrefix(req, "lightning:")
	if strings.Contains(req, "@") {
		if !addressRe.MatchString(req) {
			return nil, errors.Wrapf(ErrInvalidInvoice, "bad lightning address %q", req)
		}
		return &PaymentRequest{Address: true}, nil
	}

	hrp, _, err := bech32.DecodeNoLimit(req)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidInvoice, err.Error())
	}
	for _, p := range networkPrefixes {
		if !strings.HasPrefix(hrp, p) {
			continue
		}
		amount, err := parseHRPAmount(hrp[len(p):])
		if err != nil {
			return nil, errors.Wrap(ErrInvalidInvoice, err.Error())
		}
		return &PaymentRequest{Network: p, AmountSat: amount}, nil
	}
	return nil, errors.Wrapf(ErrInvalidInvoice, "unknown prefix %q", hrp)
}

// ValidatePaymentRequest проверяет инвойс покупателя. Если в инвойсе указана
// сумма, она должна совпадать с expected.
func ValidatePaymentRequest(req string, expected int64) error {
	pr, err := ParsePaymentRequest(req)
	if err != nil {
		return err
	}
	if pr.AmountSat > 0 && expected > 0 && pr.AmountSat != expected {
		return errors.Wrapf(ErrAmountMismatch, "invoice %d sats, expected %d", pr.AmountSat, expected)
	}
	return nil
}

// 1 sat = 1000 msat = 10 000 pBTC
const picoPerSat = 10_000

// сумма в hrp: число и множитель m/u/n/p от 1 BTC; результат в сатоши
func parseHRPAmount(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	// пико-BTC на единицу; 1 msat = 10 pBTC
	pico := int64(1_000_000_000_000)
	digits := s
	switch s[len(s)-1] {
	case 'm':
		pico = 1_000_000_000
	case 'u':
		pico = 1_000_000
	case 'n':
		pico = 1_000
	case 'p':
		pico = 1
	}
	if pico != 1_000_000_000_000 {
		digits = s[:len(s)-1]
	}
	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil || n <= 0 {
		return 0, errors.Errorf("bad amount %q", s)
	}
	if n > math.MaxInt64/pico {
		return 0, errors.Errorf("amount %q overflows", s)
	}
	total := n * pico
	if total%picoPerSat != 0 {
		return 0, errors.Errorf("amount %q is not a whole number of satoshis", s)
	}
	return total / picoPerSat, nil
}

// encodeRequest собирает тестовый инвойс lnmem с суммой в сатоши.
func encodeRequest(amount int64, hash []byte) (string, error) {
	data, err := bech32.ConvertBits(hash, 8, 5, true)
	if err != nil {
		return "", err
	}
	hrp := "lnmem"
	if amount > 0 {
		hrp += strconv.FormatInt(amount*10, 10) + "n"
	}
	return bech32.Encode(hrp, data)
}

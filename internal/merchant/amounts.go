package merchant

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// UsdcDecimals is the fixed-point scale of the stablecoin used for payment.
const UsdcDecimals = 6

// EthDecimals is the wei scale used when rendering gas costs.
const EthDecimals = 18

// ParseDecimalAmount converts a human readable decimal string into the
// fixed-point integer the contract expects, scaled by decimals. Excess
// fractional digits are rejected rather than silently truncated.
func ParseDecimalAmount(value string, decimals int) (*big.Int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, errors.New("金额不能为空")
	}
	if decimals < 0 {
		return nil, fmt.Errorf("非法的小数位数 %d", decimals)
	}
	neg := strings.HasPrefix(value, "-")
	if neg {
		return nil, errors.New("金额不能为负数")
	}
	whole, frac := value, ""
	if idx := strings.IndexByte(value, '.'); idx >= 0 {
		whole, frac = value[:idx], value[idx+1:]
	}
	if whole == "" {
		whole = "0"
	}
	if len(frac) > decimals {
		return nil, fmt.Errorf("金额小数位超过 %d 位", decimals)
	}
	frac += strings.Repeat("0", decimals-len(frac))
	digits := whole + frac
	result, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return nil, fmt.Errorf("无法解析金额 %q", value)
	}
	return result, nil
}

// FormatScaledAmount renders a fixed-point integer back to a decimal string,
// trimming trailing fractional zeros.
func FormatScaledAmount(value *big.Int, decimals int) string {
	if value == nil {
		return "0"
	}
	if decimals <= 0 {
		return value.String()
	}
	digits := value.String()
	neg := strings.HasPrefix(digits, "-")
	if neg {
		digits = digits[1:]
	}
	if len(digits) <= decimals {
		digits = strings.Repeat("0", decimals-len(digits)+1) + digits
	}
	whole := digits[:len(digits)-decimals]
	frac := strings.TrimRight(digits[len(digits)-decimals:], "0")
	out := whole
	if frac != "" {
		out += "." + frac
	}
	if neg {
		out = "-" + out
	}
	return out
}

// WeiToEthString renders a wei amount as a decimal ETH string for display.
func WeiToEthString(wei *big.Int) string {
	return FormatScaledAmount(wei, EthDecimals)
}

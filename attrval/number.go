package attrval

import (
	"fmt"
	"strconv"
	"strings"
)

// Numbers keep full decimal precision: up to 38 significant digits, with
// magnitude between 1e-130 and just under 1e126. Arithmetic is exact, no
// float rounding.
const maxSignificantDigits = 38

// Decimal is a parsed number: sign * digits * 10^exp, where digits carries
// no leading or trailing zeros. Zero is {false, "0", 0}.
type Decimal struct {
	Negative bool
	Digits   string
	Exp      int64
}

// ParseDecimal parses a DynamoDB number string, accepting an optional sign,
// a decimal point and an e/E exponent.
func ParseDecimal(s string) (Decimal, error) {
	trimmed := strings.TrimSpace(s)
	rest := trimmed
	negative := false
	switch {
	case strings.HasPrefix(rest, "-"):
		negative = true
		rest = rest[1:]
	case strings.HasPrefix(rest, "+"):
		rest = rest[1:]
	}

	explicitExp := int64(0)
	if pos := strings.IndexAny(rest, "eE"); pos >= 0 {
		exp, err := strconv.ParseInt(rest[pos+1:], 10, 64)
		if err != nil {
			return Decimal{}, fmt.Errorf("%q is not a valid number", s)
		}
		explicitExp = exp
		rest = rest[:pos]
	}

	var allDigits string
	fracLen := int64(0)
	if dot := strings.IndexByte(rest, '.'); dot >= 0 {
		intPart, fracPart := rest[:dot], rest[dot+1:]
		allDigits = intPart + fracPart
		fracLen = int64(len(fracPart))
	} else {
		allDigits = rest
	}
	if allDigits == "" {
		return Decimal{}, fmt.Errorf("%q is not a valid number", s)
	}
	for i := 0; i < len(allDigits); i++ {
		if allDigits[i] < '0' || allDigits[i] > '9' {
			return Decimal{}, fmt.Errorf("%q is not a valid number", s)
		}
	}

	digits := strings.TrimLeft(allDigits, "0")
	if digits == "" {
		return Decimal{Digits: "0"}, nil
	}

	trailing := int64(len(digits) - len(strings.TrimRight(digits, "0")))
	digits = strings.TrimRight(digits, "0")

	return Decimal{
		Negative: negative,
		Digits:   digits,
		Exp:      explicitExp - fracLen + trailing,
	}, nil
}

// IsZero reports whether d is exactly zero.
func (d Decimal) IsZero() bool { return d.Digits == "0" }

// Cmp returns -1, 0 or 1 as d is less than, equal to or greater than other.
func (d Decimal) Cmp(other Decimal) int {
	if d.IsZero() && other.IsZero() {
		return 0
	}
	if d.IsZero() {
		if other.Negative {
			return 1
		}
		return -1
	}
	if other.IsZero() {
		if d.Negative {
			return -1
		}
		return 1
	}
	if d.Negative != other.Negative {
		if d.Negative {
			return -1
		}
		return 1
	}
	cmp := d.cmpMagnitude(other)
	if d.Negative {
		return -cmp
	}
	return cmp
}

func (d Decimal) cmpMagnitude(other Decimal) int {
	// Compare by position of the most significant digit first.
	magA := int64(len(d.Digits)) + d.Exp
	magB := int64(len(other.Digits)) + other.Exp
	if magA != magB {
		if magA < magB {
			return -1
		}
		return 1
	}
	a, b := d.Digits, other.Digits
	if len(a) < len(b) {
		a += strings.Repeat("0", len(b)-len(a))
	} else if len(b) < len(a) {
		b += strings.Repeat("0", len(a)-len(b))
	}
	return strings.Compare(a, b)
}

var errNumberOverflow = fmt.Errorf("Number overflow. Attempting to store a number with magnitude larger than supported range")
var errNumberUnderflow = fmt.Errorf("Number underflow. Attempting to store a number with magnitude smaller than supported range")

// AddNumbers adds (or with subtract=true, subtracts) two number strings with
// exact decimal semantics and returns the canonical string result.
func AddNumbers(a, b string, subtract bool) (string, error) {
	pa, err := ParseDecimal(a)
	if err != nil {
		return "", err
	}
	pb, err := ParseDecimal(b)
	if err != nil {
		return "", err
	}
	if subtract {
		pb.Negative = !pb.Negative
	}
	if pa.IsZero() {
		return pb.String(), nil
	}
	if pb.IsZero() {
		return pa.String(), nil
	}

	// Align exponents by padding trailing zeros onto the larger exponent.
	minExp := pa.Exp
	if pb.Exp < minExp {
		minExp = pb.Exp
	}
	da := pa.Digits + strings.Repeat("0", int(pa.Exp-minExp))
	db := pb.Digits + strings.Repeat("0", int(pb.Exp-minExp))
	if len(da) > maxSignificantDigits+2 || len(db) > maxSignificantDigits+2 {
		return "", errNumberOverflow
	}

	av, err := strconv.ParseUint(da, 10, 64)
	var result int64
	if err == nil {
		bv, err2 := strconv.ParseUint(db, 10, 64)
		if err2 == nil && av <= 1<<62 && bv <= 1<<62 {
			sa := int64(av)
			if pa.Negative {
				sa = -sa
			}
			sb := int64(bv)
			if pb.Negative {
				sb = -sb
			}
			result = sa + sb
			return finishAdd(result, minExp)
		}
	}
	// Wide path for digit strings beyond int64 range.
	return addDigitStrings(da, pa.Negative, db, pb.Negative, minExp)
}

func finishAdd(result int64, minExp int64) (string, error) {
	negative := result < 0
	if negative {
		result = -result
	}
	return canonicalFromDigits(strconv.FormatInt(result, 10), negative, minExp)
}

// addDigitStrings performs schoolbook addition/subtraction on aligned
// unsigned digit strings.
func addDigitStrings(a string, aNeg bool, b string, bNeg bool, exp int64) (string, error) {
	if aNeg == bNeg {
		sum := addUnsigned(a, b)
		return canonicalFromDigits(sum, aNeg, exp)
	}
	cmp := cmpUnsigned(a, b)
	if cmp == 0 {
		return "0", nil
	}
	if cmp > 0 {
		return canonicalFromDigits(subUnsigned(a, b), aNeg, exp)
	}
	return canonicalFromDigits(subUnsigned(b, a), bNeg, exp)
}

func addUnsigned(a, b string) string {
	if len(a) < len(b) {
		a, b = b, a
	}
	out := make([]byte, len(a)+1)
	carry := byte(0)
	for i := 0; i < len(a); i++ {
		da := a[len(a)-1-i] - '0'
		db := byte(0)
		if i < len(b) {
			db = b[len(b)-1-i] - '0'
		}
		s := da + db + carry
		out[len(out)-1-i] = s%10 + '0'
		carry = s / 10
	}
	out[0] = carry + '0'
	return strings.TrimLeft(string(out), "0")
}

func subUnsigned(a, b string) string { // requires a >= b
	out := make([]byte, len(a))
	borrow := byte(0)
	for i := 0; i < len(a); i++ {
		da := a[len(a)-1-i] - '0'
		db := byte(0)
		if i < len(b) {
			db = b[len(b)-1-i] - '0'
		}
		d := int(da) - int(db) - int(borrow)
		if d < 0 {
			d += 10
			borrow = 1
		} else {
			borrow = 0
		}
		out[len(out)-1-i] = byte(d) + '0'
	}
	res := strings.TrimLeft(string(out), "0")
	if res == "" {
		return "0"
	}
	return res
}

func cmpUnsigned(a, b string) int {
	a = strings.TrimLeft(a, "0")
	b = strings.TrimLeft(b, "0")
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	return strings.Compare(a, b)
}

func canonicalFromDigits(abs string, negative bool, exp int64) (string, error) {
	trimmed := strings.TrimRight(abs, "0")
	if trimmed == "" || trimmed == "0" {
		return "0", nil
	}
	exp += int64(len(abs) - len(trimmed))

	if len(trimmed) > maxSignificantDigits {
		return "", errNumberOverflow
	}
	magnitude := exp + int64(len(trimmed)) - 1
	if magnitude > 125 {
		return "", errNumberOverflow
	}
	if magnitude < -130 {
		return "", errNumberUnderflow
	}
	return Decimal{Negative: negative, Digits: trimmed, Exp: exp}.String(), nil
}

// String renders the canonical number representation: plain integers and
// short decimals where they fit, scientific notation for extreme magnitudes.
func (d Decimal) String() string {
	if d.Digits == "0" {
		return "0"
	}
	sign := ""
	if d.Negative {
		sign = "-"
	}
	intDigits := int64(len(d.Digits)) + d.Exp

	if d.Exp >= 0 && intDigits <= 20 {
		return sign + d.Digits + strings.Repeat("0", int(d.Exp))
	}
	if intDigits > 0 && intDigits <= 20 {
		return sign + d.Digits[:intDigits] + "." + d.Digits[intDigits:]
	}
	if intDigits >= -6 && intDigits <= 0 {
		return sign + "0." + strings.Repeat("0", int(-intDigits)) + d.Digits
	}
	sciExp := d.Exp + int64(len(d.Digits)) - 1
	if len(d.Digits) == 1 {
		return fmt.Sprintf("%s%sE%d", sign, d.Digits, sciExp)
	}
	return fmt.Sprintf("%s%s.%sE%d", sign, d.Digits[:1], d.Digits[1:], sciExp)
}

// CompareNumbers compares two number strings numerically. It returns an
// error if either string is not a valid number.
func CompareNumbers(a, b string) (int, error) {
	da, err := ParseDecimal(a)
	if err != nil {
		return 0, err
	}
	db, err := ParseDecimal(b)
	if err != nil {
		return 0, err
	}
	return da.Cmp(db), nil
}

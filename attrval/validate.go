package attrval

import (
	"bytes"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Items nest at most 32 levels of lists and maps.
const maxNestingDepth = 32

// ValidateItem checks structural invariants before a write is applied:
// nesting depth, non-empty sets with unique elements, parseable numbers
// within the supported precision, and the total size cap.
func ValidateItem(item map[string]types.AttributeValue) error {
	for name, val := range item {
		if name == "" {
			return fmt.Errorf("attribute name must not be empty")
		}
		if err := validateValue(val, 1); err != nil {
			return fmt.Errorf("attribute %q: %w", name, err)
		}
	}
	if size := ItemSize(item); size > MaxItemSize {
		return fmt.Errorf("Item size has exceeded the maximum allowed size of %d bytes", MaxItemSize)
	}
	return nil
}

func validateValue(val types.AttributeValue, depth int) error {
	if depth > maxNestingDepth {
		return fmt.Errorf("nesting exceeds %d levels", maxNestingDepth)
	}
	switch v := val.(type) {
	case *types.AttributeValueMemberN:
		return validateNumber(v.Value)
	case *types.AttributeValueMemberSS:
		if len(v.Value) == 0 {
			return fmt.Errorf("string set must not be empty")
		}
		seen := make(map[string]struct{}, len(v.Value))
		for _, s := range v.Value {
			if _, dup := seen[s]; dup {
				return fmt.Errorf("string set contains duplicate value")
			}
			seen[s] = struct{}{}
		}
	case *types.AttributeValueMemberNS:
		if len(v.Value) == 0 {
			return fmt.Errorf("number set must not be empty")
		}
		for i, n := range v.Value {
			if err := validateNumber(n); err != nil {
				return err
			}
			for j := 0; j < i; j++ {
				if numbersEqual(v.Value[j], n) {
					return fmt.Errorf("number set contains duplicate value")
				}
			}
		}
	case *types.AttributeValueMemberBS:
		if len(v.Value) == 0 {
			return fmt.Errorf("binary set must not be empty")
		}
		for i, b := range v.Value {
			for j := 0; j < i; j++ {
				if bytes.Equal(v.Value[j], b) {
					return fmt.Errorf("binary set contains duplicate value")
				}
			}
		}
	case *types.AttributeValueMemberL:
		for _, elem := range v.Value {
			if err := validateValue(elem, depth+1); err != nil {
				return err
			}
		}
	case *types.AttributeValueMemberM:
		for name, elem := range v.Value {
			if name == "" {
				return fmt.Errorf("map key must not be empty")
			}
			if err := validateValue(elem, depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}

func validateNumber(s string) error {
	d, err := ParseDecimal(s)
	if err != nil {
		return err
	}
	if d.IsZero() {
		return nil
	}
	if len(d.Digits) > maxSignificantDigits {
		return errNumberOverflow
	}
	magnitude := d.Exp + int64(len(d.Digits)) - 1
	if magnitude > 125 {
		return errNumberOverflow
	}
	if magnitude < -130 {
		return errNumberUnderflow
	}
	return nil
}

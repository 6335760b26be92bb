package schema

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// ValidatorKind identifies a value constraint.
type ValidatorKind int

const (
	RangeValidator ValidatorKind = iota
	LengthValidator
	PatternValidator
	EnumValidator
)

// Range is an inclusive numeric interval.
type Range struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Validator is one range, length, pattern or enumeration constraint.
type Validator struct {
	Kind    ValidatorKind
	Name    string
	Ranges  []Range
	Pattern string
	Names   []string
}

type rawValidator struct {
	Type    string         `json:"type"`
	Name    string         `json:"name"`
	Ranges  []Range        `json:"ranges"`
	Pattern string         `json:"pattern"`
	Names   map[string]any `json:"names"`
}

// ErrInvalidValue is wrapped by every validation failure.
var ErrInvalidValue = errors.New("invalid value")

func convertValidators(raw []rawValidator) []Validator {
	var out []Validator
	for _, rv := range raw {
		v := Validator{Name: rv.Name, Ranges: rv.Ranges, Pattern: rv.Pattern}
		switch rv.Type {
		case "RANGE_VALIDATOR":
			v.Kind = RangeValidator
		case "LENGTH_VALIDATOR":
			v.Kind = LengthValidator
		case "PATTERN_VALIDATOR":
			v.Kind = PatternValidator
		case "ENUMERATION_VALIDATOR":
			v.Kind = EnumValidator
			for name := range rv.Names {
				v.Names = append(v.Names, name)
			}
			sort.Strings(v.Names)
		default:
			continue
		}
		out = append(out, v)
	}
	return out
}

// Check applies the validator to a textual value.
func (v Validator) Check(value string) error {
	switch v.Kind {
	case LengthValidator:
		for _, r := range v.Ranges {
			if l := float64(len(value)); l < r.Start || l > r.End {
				return fmt.Errorf("%w: length expected [%s..%s] got %d",
					ErrInvalidValue, fmtNum(r.Start), fmtNum(r.End), len(value))
			}
		}
	case RangeValidator:
		n, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("%w: %q is not a number", ErrInvalidValue, value)
		}
		for _, r := range v.Ranges {
			if n < r.Start || n > r.End {
				return fmt.Errorf("%w: range expected [%s..%s] got %s",
					ErrInvalidValue, fmtNum(r.Start), fmtNum(r.End), value)
			}
		}
	case PatternValidator:
		if v.Pattern == "" {
			return nil
		}
		pattern := v.Pattern
		if !strings.HasPrefix(pattern, "^") {
			pattern = "^(?:" + pattern + ")"
		}
		if !strings.HasSuffix(pattern, "$") {
			pattern += "$"
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return fmt.Errorf("pattern %q: %w", v.Pattern, err)
		}
		if !re.MatchString(value) {
			if v.Name != "" {
				return fmt.Errorf("%w: syntax of %s: %s", ErrInvalidValue, v.Name, value)
			}
			return fmt.Errorf("%w: expected %s for %s", ErrInvalidValue, v.Pattern, value)
		}
	case EnumValidator:
		for _, name := range v.Names {
			if strings.EqualFold(name, value) {
				return nil
			}
		}
		return fmt.Errorf("%w: choices %s for %s", ErrInvalidValue,
			strings.Join(v.Names, ", "), value)
	}
	return nil
}

// ValidateValue checks value against the validators registered at path.
// Union leaves accept a value matching any one member.
func (m *Model) ValidateValue(path string, value any) error {
	n, err := m.Lookup(path)
	if err != nil {
		return err
	}
	text := FormatValue(value)
	if n.LeafType == TypeInteger {
		if _, err := strconv.ParseInt(text, 10, 64); err != nil {
			return fmt.Errorf("%s: %w: %q is not an integer", path, ErrInvalidValue, text)
		}
	}
	if n.LeafType == TypeBoolean {
		if _, err := strconv.ParseBool(text); err != nil {
			return fmt.Errorf("%s: %w: %q is not a boolean", path, ErrInvalidValue, text)
		}
	}
	if text == "" && n.Display.AllowEmptyString {
		return nil
	}
	if len(n.Alternatives) > 0 {
		var failures []string
		for _, alt := range n.Alternatives {
			err := checkAll(alt, text)
			if err == nil {
				return nil
			}
			failures = append(failures, err.Error())
		}
		return fmt.Errorf("%s: %w: every alternative failed: %s",
			path, ErrInvalidValue, strings.Join(failures, "; "))
	}
	if err := checkAll(n.Validators, text); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

func checkAll(vs []Validator, text string) error {
	for _, v := range vs {
		if err := v.Check(text); err != nil {
			return err
		}
	}
	return nil
}

func fmtNum(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

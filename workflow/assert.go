package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// AssertType names one assertion kind.
type AssertType string

const (
	AssertExists          AssertType = "exists"
	AssertNotExists       AssertType = "not-exists"
	AssertVisible         AssertType = "visible"
	AssertHidden          AssertType = "hidden"
	AssertTextEquals      AssertType = "text-equals"
	AssertTextContains    AssertType = "text-contains"
	AssertHasAttribute    AssertType = "has-attribute"
	AssertAttributeEquals AssertType = "attribute-equals"
	AssertEnabled         AssertType = "enabled"
	AssertDisabled        AssertType = "disabled"
	AssertChecked         AssertType = "checked"
	AssertNotChecked      AssertType = "not-checked"
	AssertValueEquals     AssertType = "value-equals"
)

var assertTypes = map[AssertType]bool{
	AssertExists: true, AssertNotExists: true,
	AssertVisible: true, AssertHidden: true,
	AssertTextEquals: true, AssertTextContains: true,
	AssertHasAttribute: true, AssertAttributeEquals: true,
	AssertEnabled: true, AssertDisabled: true,
	AssertChecked: true, AssertNotChecked: true,
	AssertValueEquals: true,
}

// Assertion is one side-effect-free check of surface state.
type Assertion struct {
	Type      AssertType `json:"type"`
	Selector  string     `json:"selector"`
	Expected  string     `json:"expected,omitempty"`
	Attribute string     `json:"attribute,omitempty"`
}

func (a *Assertion) validate() error {
	if a == nil {
		return fmt.Errorf("assertion spec missing")
	}
	if !assertTypes[a.Type] {
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	if a.Selector == "" {
		return fmt.Errorf("assertion %q requires a selector", a.Type)
	}
	switch a.Type {
	case AssertTextEquals, AssertTextContains, AssertValueEquals:
		if a.Expected == "" {
			return fmt.Errorf("assertion %q requires an expected value", a.Type)
		}
	case AssertHasAttribute:
		if a.Attribute == "" {
			return fmt.Errorf("assertion %q requires an attribute name", a.Type)
		}
	case AssertAttributeEquals:
		if a.Attribute == "" {
			return fmt.Errorf("assertion %q requires an attribute name", a.Type)
		}
	}
	return nil
}

// AssertionResult is the structured pass/fail record of one assertion.
type AssertionResult struct {
	Passed   bool       `json:"passed"`
	Type     AssertType `json:"assert_type"`
	Selector string     `json:"selector"`
	Expected string     `json:"expected,omitempty"`
	Actual   string     `json:"actual,omitempty"`
	Message  string     `json:"message"`
}

const actualNotFound = "element not found in DOM"

// EvaluateAssertion maps (surface, assertion) to a pass/fail record.
// Assertion failure is data, not control flow: every reachable branch
// returns a record with Passed false rather than an error. The returned
// error is non-nil only for unexpected collaborator failures (the surface
// crashed mid-query); an element that never attaches within the timeout is
// an ordinary failed record.
func EvaluateAssertion(ctx context.Context, s Surface, a Assertion, timeout time.Duration) (AssertionResult, error) {
	res := AssertionResult{
		Type:     a.Type,
		Selector: a.Selector,
		Expected: a.Expected,
	}

	el, err := s.Element(ctx, a.Selector, timeout)
	if err != nil {
		if !errors.Is(err, ErrElementNotFound) {
			return res, fmt.Errorf("workflow: assertion query %q: %w", a.Selector, err)
		}
		if a.Type == AssertNotExists {
			res.Passed = true
			res.Message = fmt.Sprintf("%q does not exist", a.Selector)
			return res, nil
		}
		res.Actual = actualNotFound
		res.Message = fmt.Sprintf("%q: %s", a.Selector, actualNotFound)
		return res, nil
	}

	switch a.Type {
	case AssertExists:
		res.Passed = true
		res.Actual = "exists"

	case AssertNotExists:
		res.Actual = "exists"

	case AssertVisible, AssertHidden:
		visible, verr := el.Visible()
		if verr != nil {
			return res, fmt.Errorf("workflow: visibility of %q: %w", a.Selector, verr)
		}
		res.Actual = visibility(visible)
		res.Passed = visible == (a.Type == AssertVisible)

	case AssertTextEquals, AssertTextContains:
		text, terr := el.Text()
		if terr != nil {
			return res, fmt.Errorf("workflow: text of %q: %w", a.Selector, terr)
		}
		res.Actual = text
		if a.Type == AssertTextEquals {
			res.Passed = text == a.Expected
		} else {
			res.Passed = strings.Contains(text, a.Expected)
		}

	case AssertHasAttribute:
		attr, aerr := el.Attribute(a.Attribute)
		if aerr != nil {
			return res, fmt.Errorf("workflow: attribute %q of %q: %w", a.Attribute, a.Selector, aerr)
		}
		res.Passed = attr != nil
		if attr != nil {
			res.Actual = *attr
		} else {
			res.Actual = "attribute absent"
		}

	case AssertAttributeEquals:
		attr, aerr := el.Attribute(a.Attribute)
		if aerr != nil {
			return res, fmt.Errorf("workflow: attribute %q of %q: %w", a.Attribute, a.Selector, aerr)
		}
		if attr == nil {
			res.Actual = "attribute absent"
		} else {
			res.Actual = *attr
			res.Passed = *attr == a.Expected
		}

	case AssertEnabled, AssertDisabled:
		disabled, derr := el.Disabled()
		if derr != nil {
			return res, fmt.Errorf("workflow: disabled state of %q: %w", a.Selector, derr)
		}
		if disabled {
			res.Actual = "disabled"
		} else {
			res.Actual = "enabled"
		}
		res.Passed = disabled == (a.Type == AssertDisabled)

	case AssertChecked, AssertNotChecked:
		checked, cerr := el.Checked()
		if cerr != nil {
			return res, fmt.Errorf("workflow: checked state of %q: %w", a.Selector, cerr)
		}
		if checked {
			res.Actual = "checked"
		} else {
			res.Actual = "unchecked"
		}
		res.Passed = checked == (a.Type == AssertChecked)

	case AssertValueEquals:
		value, verr := el.Value()
		if verr != nil {
			return res, fmt.Errorf("workflow: value of %q: %w", a.Selector, verr)
		}
		res.Actual = value
		res.Passed = value == a.Expected
	}

	switch {
	case res.Passed:
		res.Message = fmt.Sprintf("%s %q: ok", a.Type, a.Selector)
	case res.Expected == "":
		res.Message = fmt.Sprintf("%s %q: got %q", a.Type, a.Selector, res.Actual)
	default:
		res.Message = fmt.Sprintf("%s %q: expected %q, got %q",
			a.Type, a.Selector, res.Expected, res.Actual)
	}
	return res, nil
}

func visibility(v bool) string {
	if v {
		return "visible"
	}
	return "hidden"
}

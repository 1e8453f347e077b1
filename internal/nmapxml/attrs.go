package nmapxml

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"time"

	"github.com/anstrom/scanvault/internal/errors"
)

// attributes gives typed access to the attributes of one element.
type attributes struct {
	element string
	list    []xml.Attr
}

func (a attributes) lookup(name string) (string, bool) {
	for _, attr := range a.list {
		if attr.Name.Space == "" && attr.Name.Local == name {
			return attr.Value, true
		}
	}
	return "", false
}

func (a attributes) str(name string) string {
	v, _ := a.lookup(name)
	return v
}

func (a attributes) required(name string) (string, error) {
	v, ok := a.lookup(name)
	if !ok {
		return "", errors.ErrMissingField(a.element, name)
	}
	return v, nil
}

func (a attributes) optional(name string) *string {
	v, ok := a.lookup(name)
	if !ok {
		return nil
	}
	return &v
}

func (a attributes) invalid(name, value string, cause error) error {
	err := errors.WrapReportError(errors.CodeInvalidValue, fmt.Sprintf("invalid %s attribute", name), cause)
	err.Value = value
	return err.InElement(a.element)
}

func (a attributes) requiredInt(name string) (int, error) {
	v, err := a.required(name)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, a.invalid(name, v, err)
	}
	return n, nil
}

// optionalInt returns nil when the attribute is absent.
func (a attributes) optionalInt(name string) (*int, error) {
	v, ok := a.lookup(name)
	if !ok {
		return nil, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return nil, a.invalid(name, v, err)
	}
	return &n, nil
}

func (a attributes) intOr(name string, fallback int) (int, error) {
	n, err := a.optionalInt(name)
	if err != nil || n == nil {
		return fallback, err
	}
	return *n, nil
}

func (a attributes) floatOr(name string, fallback float64) (float64, error) {
	v, ok := a.lookup(name)
	if !ok {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, a.invalid(name, v, err)
	}
	return f, nil
}

// epoch parses a Unix timestamp attribute. An absent attribute yields the
// zero time.
func (a attributes) epoch(name string) (time.Time, error) {
	v, ok := a.lookup(name)
	if !ok {
		return time.Time{}, nil
	}
	return a.parseEpoch(name, v)
}

func (a attributes) requiredEpoch(name string) (time.Time, error) {
	v, err := a.required(name)
	if err != nil {
		return time.Time{}, err
	}
	return a.parseEpoch(name, v)
}

func (a attributes) parseEpoch(name, v string) (time.Time, error) {
	secs, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, a.invalid(name, v, err)
	}
	return time.Unix(secs, 0).UTC(), nil
}

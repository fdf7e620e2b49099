package model

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ErrUnknownEnvironment is returned when an environment label is neither
// Urban nor Rural.
var ErrUnknownEnvironment = errors.New("unknown environment")

// Environment is the operator-selected deployment context. It only changes the
// tie-break rule used when picking a free band.
type Environment string

const (
	Urban Environment = "Urban"
	Rural Environment = "Rural"
)

// Environments lists the labels offered to operators, in display order.
var Environments = []Environment{Urban, Rural}

var titleCaser = cases.Title(language.English)

// ParseEnvironment normalises a label such as "urban" or " RURAL " and returns
// the matching Environment.
func ParseEnvironment(s string) (Environment, error) {
	label := titleCaser.String(strings.ToLower(strings.TrimSpace(s)))
	switch Environment(label) {
	case Urban:
		return Urban, nil
	case Rural:
		return Rural, nil
	default:
		return "", fmt.Errorf("%q: %w", s, ErrUnknownEnvironment)
	}
}

// PrefersLowBands reports whether selection favours the lowest free band.
// Anything other than Urban favours the highest.
func (e Environment) PrefersLowBands() bool { return e == Urban }

func (e Environment) String() string { return string(e) }

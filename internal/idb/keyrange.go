package idb

import (
	"bytes"
	"fmt"
)

// KeyRange bounds a traversal. A nil bound is unbounded on that side.
type KeyRange struct {
	Lower     interface{} `json:"lower,omitempty" yaml:"lower,omitempty"`
	Upper     interface{} `json:"upper,omitempty" yaml:"upper,omitempty"`
	LowerOpen bool        `json:"lowerOpen,omitempty" yaml:"lowerOpen,omitempty"`
	UpperOpen bool        `json:"upperOpen,omitempty" yaml:"upperOpen,omitempty"`
}

// Only matches exactly key.
func Only(key interface{}) *KeyRange {
	return &KeyRange{Lower: key, Upper: key}
}

func LowerBound(key interface{}, open bool) *KeyRange {
	return &KeyRange{Lower: key, LowerOpen: open}
}

func UpperBound(key interface{}, open bool) *KeyRange {
	return &KeyRange{Upper: key, UpperOpen: open}
}

// Bound builds a range with both ends. lower must not exceed upper.
func Bound(lower, upper interface{}, lowerOpen, upperOpen bool) (*KeyRange, error) {
	r := &KeyRange{Lower: lower, Upper: upper, LowerOpen: lowerOpen, UpperOpen: upperOpen}
	if _, err := r.encode(); err != nil {
		return nil, err
	}
	return r, nil
}

type encodedRange struct {
	lower, upper         []byte
	lowerOpen, upperOpen bool
}

func (r *KeyRange) encode() (*encodedRange, error) {
	er := &encodedRange{}
	if r == nil {
		return er, nil
	}
	var err error
	if r.Lower != nil {
		if er.lower, err = EncodeKey(r.Lower); err != nil {
			return nil, fmt.Errorf("lower bound: %w", err)
		}
		er.lowerOpen = r.LowerOpen
	}
	if r.Upper != nil {
		if er.upper, err = EncodeKey(r.Upper); err != nil {
			return nil, fmt.Errorf("upper bound: %w", err)
		}
		er.upperOpen = r.UpperOpen
	}
	if er.lower != nil && er.upper != nil {
		c := bytes.Compare(er.lower, er.upper)
		if c > 0 || (c == 0 && (er.lowerOpen || er.upperOpen)) {
			return nil, fmt.Errorf("%w: empty key range", ErrData)
		}
	}
	return er, nil
}

// Includes reports whether key lies in the range.
func (r *KeyRange) Includes(key interface{}) (bool, error) {
	er, err := r.encode()
	if err != nil {
		return false, err
	}
	k, err := EncodeKey(key)
	if err != nil {
		return false, err
	}
	return er.aboveLower(k) && er.belowUpper(k), nil
}

func (er *encodedRange) aboveLower(k []byte) bool {
	if er.lower == nil {
		return true
	}
	c := bytes.Compare(k, er.lower)
	return c > 0 || (c == 0 && !er.lowerOpen)
}

func (er *encodedRange) belowUpper(k []byte) bool {
	if er.upper == nil {
		return true
	}
	c := bytes.Compare(k, er.upper)
	return c < 0 || (c == 0 && !er.upperOpen)
}

type Direction string

const (
	DirectionNext       Direction = "next"
	DirectionNextUnique Direction = "nextunique"
	DirectionPrev       Direction = "prev"
	DirectionPrevUnique Direction = "prevunique"
)

// ParseDirection accepts the four cursor directions, "" meaning next.
func ParseDirection(s string) (Direction, error) {
	switch d := Direction(s); d {
	case "":
		return DirectionNext, nil
	case DirectionNext, DirectionNextUnique, DirectionPrev, DirectionPrevUnique:
		return d, nil
	}
	return "", fmt.Errorf("%w: invalid direction %q", ErrData, s)
}

// Unique returns the unique variant of d.
func (d Direction) Unique() Direction {
	switch d {
	case DirectionPrev, DirectionPrevUnique:
		return DirectionPrevUnique
	}
	return DirectionNextUnique
}

func (d Direction) reverse() bool {
	return d == DirectionPrev || d == DirectionPrevUnique
}

func (d Direction) unique() bool {
	return d == DirectionNextUnique || d == DirectionPrevUnique
}

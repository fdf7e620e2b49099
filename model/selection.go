package model

import (
	"encoding/json"
	"fmt"
)

// Selection is the optional outcome of band selection. The zero value means no
// free band was available.
type Selection struct {
	Band int
	OK   bool
}

// NoSelection is the absent selection.
var NoSelection = Selection{}

// Selected returns a present selection for band i.
func Selected(i int) Selection { return Selection{Band: i, OK: true} }

// Get returns the band index and whether one was selected.
func (s Selection) Get() (int, bool) { return s.Band, s.OK }

func (s Selection) String() string {
	if !s.OK {
		return "none"
	}
	return fmt.Sprintf("band %d", s.Band)
}

// MarshalJSON encodes a present selection as its band index and an absent one
// as null.
func (s Selection) MarshalJSON() ([]byte, error) {
	if !s.OK {
		return []byte("null"), nil
	}
	return json.Marshal(s.Band)
}

// UnmarshalJSON accepts a band index or null.
func (s *Selection) UnmarshalJSON(data []byte) error {
	var band *int
	if err := json.Unmarshal(data, &band); err != nil {
		return err
	}
	if band == nil {
		*s = NoSelection
		return nil
	}
	*s = Selected(*band)
	return nil
}

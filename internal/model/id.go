package model

import (
	"bytes"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
)

// IDList is a list of product ids decoded from JSON numbers or numeric strings.
// Entries that are neither are dropped.
type IDList []int64

func (l *IDList) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*l = nil
		return nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(IDList, 0, len(raw))
	for _, item := range raw {
		if id, ok := ParseID(item); ok {
			out = append(out, id)
		}
	}
	*l = out
	return nil
}

// ParseID reads an id from a raw JSON number or string token.
func ParseID(raw []byte) (int64, bool) {
	s := strings.TrimSpace(string(raw))
	s = strings.Trim(s, `"`)
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if id, err := strconv.ParseInt(s, 10, 64); err == nil {
		return id, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != float64(int64(f)) {
		return 0, false
	}
	return int64(f), true
}

// ID is a single product id decoded like an IDList entry. Unparseable values
// decode to zero.
type ID int64

func (id *ID) UnmarshalJSON(data []byte) error {
	v, ok := ParseID(data)
	if !ok {
		*id = 0
		return nil
	}
	*id = ID(v)
	return nil
}

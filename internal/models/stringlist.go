package models

import (
	"database/sql/driver"
	"fmt"
	"strings"
)

// StringList is stored as a comma-joined text column. Elements containing a
// comma do not round-trip.
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	return strings.Join(l, ","), nil
}

func (l *StringList) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*l = StringList{}
	case string:
		*l = SplitList(v)
	case []byte:
		*l = SplitList(string(v))
	default:
		return fmt.Errorf("cannot scan %T into StringList", src)
	}
	return nil
}

func (StringList) GormDataType() string { return "text" }

// SplitList splits a stored comma list, trimming tokens and dropping empty ones.
func SplitList(s string) []string {
	out := []string{}
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

package store

import "encoding/json"

// Row is an opaque key-value record as delivered by the remote query surface.
// Values keep the shape JSON decoding gives them, with numbers preserved as
// json.Number so monetary columns survive with their decimal digits intact.
// Each table owns an explicit decode step from Row into its entity type.
type Row map[string]any

// ID extracts the row's primary key as a string. Remote ids may arrive as
// strings (uuid columns) or numbers (serial columns); both are normalized.
func (r Row) ID() string {
	switch v := r["id"].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		return json.Number(trimFloat(v)).String()
	default:
		return ""
	}
}

// String returns the named column as a string, or "" when absent or not
// string-shaped.
func (r Row) String(column string) string {
	s, _ := r[column].(string)
	return s
}

// Field returns the named column normalized to a string, accepting both
// string and numeric column shapes. Filter-key comparison goes through this
// so uuid and serial scoping columns behave the same.
func (r Row) Field(column string) string {
	switch v := r[column].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		return trimFloat(v)
	default:
		return ""
	}
}

func trimFloat(f float64) string {
	n, err := json.Marshal(f)
	if err != nil {
		return ""
	}
	return string(n)
}

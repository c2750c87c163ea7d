package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// APIKeyField is the JSON key holding the hashes.com API key in the preferences file.
const APIKeyField = "api_key"

// Known preference keys written by the shell. Any other key is passed through untouched.
const (
	KeyJobsCurrency         = "jobs_currency"
	KeyJobsAlgorithm        = "jobs_algorithm"
	KeyJobsMinLeft          = "jobs_min_left"
	KeyJobsSortColumn       = "jobs_table_sort_column"
	KeyJobsSortDesc         = "jobs_table_sort_desc"
	KeyJobsTableColumns     = "jobs_table_columns"
	KeyLookupTableColumns   = "lookup_table_columns"
	KeyBalanceTableColumns  = "balance_table_columns"
	KeyJobsPaneSash         = "jobs_pane_sash"
	KeyLeftListsDestination = "leftlists_destination"
)

var ErrMalformedPreferences = errors.New("malformed preferences")

// Preferences is the persisted preferences record: the API key plus an open
// set of pass-through values. Values are kept in their JSON-decoded form
// (numbers as json.Number) so a saved record loads back identical.
type Preferences struct {
	APIKey string
	Values map[string]any
}

func DefaultPreferences() Preferences {
	return Preferences{
		APIKey: "",
		Values: map[string]any{
			KeyJobsSortColumn: "created",
			KeyJobsSortDesc:   true,
		},
	}
}

// NewPreferences builds a record from plain Go values, normalising them the
// same way a load from disk would.
func NewPreferences(apiKey string, values map[string]any) (Preferences, error) {
	p := Preferences{APIKey: apiKey, Values: map[string]any{}}
	for k, v := range values {
		if err := p.Set(k, v); err != nil {
			return Preferences{}, err
		}
	}
	return p, nil
}

func (p Preferences) Clone() Preferences {
	out := Preferences{APIKey: p.APIKey, Values: make(map[string]any, len(p.Values))}
	for k, v := range p.Values {
		out.Values[k] = cloneValue(v)
	}
	return out
}

// Set stores v under key. A nil v removes the key. Keys are opaque and
// stored exactly as given, like keys read from the file.
func (p *Preferences) Set(key string, v any) error {
	if key == "" {
		return fmt.Errorf("%w: empty key", ErrMalformedPreferences)
	}
	if key == APIKeyField {
		s, ok := v.(string)
		if !ok && v != nil {
			return fmt.Errorf("%w: %s must be a string", ErrMalformedPreferences, APIKeyField)
		}
		p.APIKey = s
		return nil
	}
	if p.Values == nil {
		p.Values = map[string]any{}
	}
	if v == nil {
		delete(p.Values, key)
		return nil
	}
	norm, err := normalize(v)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformedPreferences, key, err)
	}
	p.Values[key] = norm
	return nil
}

func (p Preferences) Value(key string) (any, bool) {
	v, ok := p.Values[key]
	return v, ok
}

func (p Preferences) String(key, def string) string {
	switch v := p.Values[key].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	default:
		return def
	}
}

// Int reads key leniently: numbers and numeric strings are accepted.
func (p Preferences) Int(key string, def int) int {
	switch v := p.Values[key].(type) {
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n)
		}
		if f, err := v.Float64(); err == nil {
			return int(f)
		}
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	case float64:
		return int(v)
	case int:
		return v
	}
	return def
}

func (p Preferences) Bool(key string, def bool) bool {
	switch v := p.Values[key].(type) {
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return b
		}
	case json.Number:
		return v.String() != "0"
	}
	return def
}

func (p Preferences) MarshalJSON() ([]byte, error) {
	flat := make(map[string]any, len(p.Values)+1)
	for k, v := range p.Values {
		flat[k] = v
	}
	flat[APIKeyField] = p.APIKey
	return json.Marshal(flat)
}

// UnmarshalJSON accepts a flat JSON object. Anything else, or a non-string
// api_key, is ErrMalformedPreferences and leaves p untouched.
func (p *Preferences) UnmarshalJSON(b []byte) error {
	var raw map[string]any
	if err := decodeNumbers(b, &raw); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPreferences, err)
	}
	if raw == nil {
		return fmt.Errorf("%w: not a JSON object", ErrMalformedPreferences)
	}
	out := Preferences{Values: map[string]any{}}
	for k, v := range raw {
		if k == APIKeyField {
			switch key := v.(type) {
			case string:
				out.APIKey = key
			case nil:
			default:
				return fmt.Errorf("%w: %s must be a string", ErrMalformedPreferences, APIKeyField)
			}
			continue
		}
		out.Values[k] = v
	}
	*p = out
	return nil
}

func decodeNumbers(b []byte, out any) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("trailing data after JSON value")
	}
	return nil
}

func normalize(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := decodeNumbers(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, e := range t {
			m[k] = cloneValue(e)
		}
		return m
	case []any:
		s := make([]any, len(t))
		for i, e := range t {
			s[i] = cloneValue(e)
		}
		return s
	default:
		return v
	}
}

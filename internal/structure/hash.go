package structure

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
)

// Hash maps field names to string values, encoded as a JSON object.
type Hash struct {
	fields map[string]string
}

// NewHash creates a new empty Hash.
func NewHash() *Hash {
	return &Hash{
		fields: make(map[string]string),
	}
}

// Set sets field to value. Returns true if the field is new (didn't exist before).
func (h *Hash) Set(field, value string) bool {
	_, existed := h.fields[field]
	h.fields[field] = value
	return !existed
}

// Merge copies every pair of fields into the hash; later writes win.
func (h *Hash) Merge(fields map[string]string) {
	for f, v := range fields {
		h.fields[f] = v
	}
}

// Get returns the value of a field.
func (h *Hash) Get(field string) (string, bool) {
	val, exists := h.fields[field]
	return val, exists
}

// Del removes one or more fields. Returns the number of fields removed.
func (h *Hash) Del(fields ...string) int {
	removed := 0
	for _, f := range fields {
		if _, exists := h.fields[f]; exists {
			delete(h.fields, f)
			removed++
		}
	}
	return removed
}

// Exists returns whether a field exists in the hash.
func (h *Hash) Exists(field string) bool {
	_, exists := h.fields[field]
	return exists
}

// Len returns the number of fields in the hash.
func (h *Hash) Len() int {
	return len(h.fields)
}

// GetAll returns a copy of all field-value pairs.
func (h *Hash) GetAll() map[string]string {
	result := make(map[string]string, len(h.fields))
	for f, v := range h.fields {
		result[f] = v
	}
	return result
}

// Keys returns all field names, sorted.
func (h *Hash) Keys() []string {
	keys := make([]string, 0, len(h.fields))
	for field := range h.fields {
		keys = append(keys, field)
	}
	sort.Strings(keys)
	return keys
}

// Vals returns all values, ordered by field name.
func (h *Hash) Vals() []string {
	keys := h.Keys()
	vals := make([]string, len(keys))
	for i, k := range keys {
		vals[i] = h.fields[k]
	}
	return vals
}

// IncrBy adds delta to the numeric value of field and returns the result.
// A missing or non-numeric value counts as 0.
func (h *Hash) IncrBy(field string, delta float64) float64 {
	var current float64
	if val, exists := h.fields[field]; exists {
		if parsed, err := strconv.ParseFloat(val, 64); err == nil && !math.IsNaN(parsed) {
			current = parsed
		}
	}

	newVal := current + delta
	h.fields[field] = strconv.FormatFloat(newVal, 'f', -1, 64)
	return newVal
}

// MarshalJSON encodes the hash as a JSON object.
func (h *Hash) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.fields)
}

// UnmarshalJSON decodes a JSON object of string values.
func (h *Hash) UnmarshalJSON(data []byte) error {
	var fields map[string]string
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	if fields == nil {
		fields = make(map[string]string)
	}
	h.fields = fields
	return nil
}

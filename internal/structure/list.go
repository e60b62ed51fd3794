package structure

import "encoding/json"

// List is an ordered sequence of strings, encoded as a JSON array.
type List struct {
	items []string
}

// NewList creates a new empty List.
func NewList() *List {
	return &List{
		items: make([]string, 0),
	}
}

// LPush prepends values to the list keeping their argument order, so
// LPush("a", "b", "c") on an empty list yields [a b c].
// Returns the new length of the list.
func (l *List) LPush(values ...string) int {
	newItems := make([]string, 0, len(values)+len(l.items))
	newItems = append(newItems, values...)
	newItems = append(newItems, l.items...)
	l.items = newItems
	return len(l.items)
}

// RPush appends values to the list. Returns the new length of the list.
func (l *List) RPush(values ...string) int {
	l.items = append(l.items, values...)
	return len(l.items)
}

// LPop removes and returns the first element.
func (l *List) LPop() (string, bool) {
	if len(l.items) == 0 {
		return "", false
	}
	val := l.items[0]
	l.items = l.items[1:]
	return val, true
}

// RPop removes and returns the last element.
func (l *List) RPop() (string, bool) {
	if len(l.items) == 0 {
		return "", false
	}
	val := l.items[len(l.items)-1]
	l.items = l.items[:len(l.items)-1]
	return val, true
}

// Len returns the number of elements in the list.
func (l *List) Len() int {
	return len(l.items)
}

// Index returns the element at the given index.
// Negative indices count from the end (-1 is the last element).
func (l *List) Index(index int) (string, bool) {
	idx := l.resolveIndex(index)
	if idx < 0 || idx >= len(l.items) {
		return "", false
	}
	return l.items[idx], true
}

// Set overwrites the element at index. Returns false if the index is out of range.
func (l *List) Set(index int, value string) bool {
	idx := l.resolveIndex(index)
	if idx < 0 || idx >= len(l.items) {
		return false
	}
	l.items[idx] = value
	return true
}

// Range returns elements from start to stop (inclusive), supporting negative indices.
func (l *List) Range(start, stop int) []string {
	s, e, ok := clampRange(start, stop, len(l.items))
	if !ok {
		return []string{}
	}
	result := make([]string, e-s+1)
	copy(result, l.items[s:e+1])
	return result
}

// Items returns a copy of every element in order.
func (l *List) Items() []string {
	return l.Range(0, -1)
}

func (l *List) resolveIndex(index int) int {
	if index < 0 {
		return len(l.items) + index
	}
	return index
}

// MarshalJSON encodes the list as a JSON array of strings.
func (l *List) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.items)
}

// UnmarshalJSON decodes a JSON array of strings.
func (l *List) UnmarshalJSON(data []byte) error {
	var items []string
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	if items == nil {
		items = make([]string, 0)
	}
	l.items = items
	return nil
}

// clampRange resolves negative start/stop against length and clamps them to
// the valid window. ok is false when the window is empty.
func clampRange(start, stop, length int) (int, int, bool) {
	if length == 0 {
		return 0, 0, false
	}
	if start < 0 {
		start = length + start
	}
	if stop < 0 {
		stop = length + stop
	}
	if start < 0 {
		start = 0
	}
	if stop >= length {
		stop = length - 1
	}
	if start > stop || start >= length {
		return 0, 0, false
	}
	return start, stop, true
}

package protocol

import (
	"bytes"
	"strings"
)

// Header is an ordered set of HTTP header fields. Unlike a map it keeps
// insertion order, which is what ends up on the wire.
type Header struct {
	fields []field
}

type field struct {
	key   string
	value string
}

// Set replaces the first field matching key (case-insensitive) in place,
// dropping any later duplicates. A new key is appended.
func (h *Header) Set(key, value string) {
	replaced := false
	kept := h.fields[:0]
	for _, f := range h.fields {
		if strings.EqualFold(f.key, key) {
			if replaced {
				continue
			}
			f.value = value
			replaced = true
		}
		kept = append(kept, f)
	}
	h.fields = kept
	if !replaced {
		h.fields = append(h.fields, field{key: key, value: value})
	}
}

// Add appends a field without touching existing ones.
func (h *Header) Add(key, value string) {
	h.fields = append(h.fields, field{key: key, value: value})
}

// Get returns the value of the first field matching key, or "".
func (h *Header) Get(key string) string {
	for _, f := range h.fields {
		if strings.EqualFold(f.key, key) {
			return f.value
		}
	}
	return ""
}

// Has reports whether a field matching key exists.
func (h *Header) Has(key string) bool {
	for _, f := range h.fields {
		if strings.EqualFold(f.key, key) {
			return true
		}
	}
	return false
}

// Del removes every field matching key.
func (h *Header) Del(key string) {
	kept := h.fields[:0]
	for _, f := range h.fields {
		if strings.EqualFold(f.key, key) {
			continue
		}
		kept = append(kept, f)
	}
	h.fields = kept
}

// Len returns the number of fields.
func (h *Header) Len() int {
	return len(h.fields)
}

// WriteTo serialises the fields in insertion order as "Key: value\r\n"
// lines, without the terminating blank line.
func (h *Header) WriteTo(buf *bytes.Buffer) {
	for _, f := range h.fields {
		buf.WriteString(f.key)
		buf.WriteString(": ")
		buf.WriteString(f.value)
		buf.WriteString("\r\n")
	}
}

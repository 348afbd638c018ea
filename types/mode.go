// Package types defines core domain types shared by the worker, the
// host-side driver and the CLI.
//
//nolint:revive // types is a common Go package naming convention
package types

import (
	"fmt"
	"strings"
)

// SerializedMode describes how records are encoded inside data frames.
// A session's input and output modes are fixed once the command is read.
type SerializedMode string

const (
	// ModeNone carries each record as raw bytes.
	ModeNone SerializedMode = "none"
	// ModeString carries each record as UTF-8 text.
	ModeString SerializedMode = "string"
	// ModeByte carries one msgpack-encoded object per frame.
	ModeByte SerializedMode = "byte"
	// ModePickling carries a msgpack array per frame; each element is a record.
	ModePickling SerializedMode = "pickling"
	// ModeRow is ModePickling where every element is a row ([]any).
	ModeRow SerializedMode = "row"
	// ModePair carries two frames per record, key then value.
	ModePair SerializedMode = "pair"
)

// ParseSerializedMode parses a mode name. The empty string maps to ModeNone.
func ParseSerializedMode(s string) (SerializedMode, error) {
	switch strings.ToLower(s) {
	case "", "none":
		return ModeNone, nil
	case "string":
		return ModeString, nil
	case "byte":
		return ModeByte, nil
	case "pickling":
		return ModePickling, nil
	case "row":
		return ModeRow, nil
	case "pair":
		return ModePair, nil
	default:
		return "", fmt.Errorf("unknown serialized mode %q", s)
	}
}

// IsBatch reports whether one frame expands into several records.
func (m SerializedMode) IsBatch() bool {
	return m == ModePickling || m == ModeRow
}

// Valid reports whether m is a known mode.
func (m SerializedMode) Valid() bool {
	_, err := ParseSerializedMode(string(m))
	return err == nil
}

package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/chazu/ncsdecomp/decompiler"
	"github.com/fxamacker/cbor/v2"
)

// cborEncMode uses canonical mode so equal entries encode to equal bytes.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("cache: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Entry is a cached decompilation: the rendered text and the diagnostics
// produced while rendering it.
type Entry struct {
	Text        string       `cbor:"1,keyasint"`
	Diagnostics []Diagnostic `cbor:"2,keyasint,omitempty"`
	Failed      bool         `cbor:"3,keyasint,omitempty"`
}

// Diagnostic is the stored form of a decompiler.Diagnostic.
type Diagnostic struct {
	Kind       string `cbor:"1,keyasint"`
	Subroutine string `cbor:"2,keyasint"`
	Offset     int    `cbor:"3,keyasint"`
	Message    string `cbor:"4,keyasint"`
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s %04X %s: %s", d.Subroutine, d.Offset, d.Kind, d.Message)
}

// FromResult captures a decompilation result.
func FromResult(res *decompiler.Result) *Entry {
	e := &Entry{Text: res.Render(), Failed: res.Err() != nil}
	for _, d := range res.Diagnostics {
		e.Diagnostics = append(e.Diagnostics, Diagnostic{
			Kind:       d.Kind.String(),
			Subroutine: d.Subroutine,
			Offset:     d.Offset,
			Message:    d.Message,
		})
	}
	return e
}

// Key returns the content address of a compiled script. variant names the
// settings that affect rendering, so the same bytes rendered differently
// get distinct keys.
func Key(data []byte, variant string) string {
	h := sha256.New()
	h.Write(data)
	h.Write([]byte{0})
	h.Write([]byte(variant))
	return hex.EncodeToString(h.Sum(nil))
}

// MarshalEntry serializes an Entry to CBOR bytes.
func MarshalEntry(e *Entry) ([]byte, error) {
	return cborEncMode.Marshal(e)
}

// UnmarshalEntry deserializes an Entry from CBOR bytes.
func UnmarshalEntry(data []byte) (*Entry, error) {
	var e Entry
	if err := cbor.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("cache: unmarshal entry: %w", err)
	}
	return &e, nil
}

// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package wasm

import (
	"github.com/dongsheng28849455/wasm-micro-runtime-sub000/wasm/internal/readpos"
)

// SectionID is a 1-byte code that encodes the section code of both known and custom sections.
type SectionID uint8

const (
	SectionIDCustom    SectionID = 0
	SectionIDType      SectionID = 1
	SectionIDImport    SectionID = 2
	SectionIDFunction  SectionID = 3
	SectionIDTable     SectionID = 4
	SectionIDMemory    SectionID = 5
	SectionIDGlobal    SectionID = 6
	SectionIDExport    SectionID = 7
	SectionIDStart     SectionID = 8
	SectionIDElement   SectionID = 9
	SectionIDCode      SectionID = 10
	SectionIDData      SectionID = 11
	SectionIDDataCount SectionID = 12
)

func (s SectionID) String() string {
	n, ok := map[SectionID]string{
		SectionIDCustom:    "custom",
		SectionIDType:      "type",
		SectionIDImport:    "import",
		SectionIDFunction:  "function",
		SectionIDTable:     "table",
		SectionIDMemory:    "memory",
		SectionIDGlobal:    "global",
		SectionIDExport:    "export",
		SectionIDStart:     "start",
		SectionIDElement:   "element",
		SectionIDCode:      "code",
		SectionIDData:      "data",
		SectionIDDataCount: "data count",
	}[s]
	if !ok {
		return "unknown"
	}
	return n
}

// order returns the position of a standard section in the required section order. The data count section sits
// between the element and code sections despite its larger ID.
func (s SectionID) order() int {
	switch s {
	case SectionIDDataCount:
		return int(SectionIDElement) + 1
	case SectionIDCode, SectionIDData:
		return int(s) + 1
	default:
		return int(s)
	}
}

// RawSection is a declared section in a WASM module. Start and End are the offsets of the section's contents in the
// module binary, and Bytes aliases those contents.
type RawSection struct {
	Start int64
	End   int64

	ID    SectionID
	Bytes []byte
}

// SplitSections checks the module preamble and slices the remainder of buf into sections. Custom sections may occur
// anywhere; every other section may occur at most once and only in the prescribed order.
func SplitSections(buf []byte) ([]RawSection, error) {
	r := readpos.New(buf, 0)

	magic, err := r.U32()
	if err != nil {
		return nil, err
	}
	if magic != Magic {
		return nil, &MalformedError{Offset: 0, Msg: ErrInvalidMagic.Error(), Err: ErrInvalidMagic}
	}
	version, err := r.U32()
	if err != nil {
		return nil, err
	}
	if version != Version {
		return nil, &MalformedError{Offset: 4, Msg: ErrUnknownVersion.Error(), Err: ErrUnknownVersion}
	}

	var sections []RawSection
	lastOrder := 0
	for !r.AtEnd() {
		idPos := r.Pos()
		id, err := r.Byte()
		if err != nil {
			return nil, err
		}

		sid := SectionID(id)
		if sid > SectionIDDataCount {
			return nil, &MalformedError{Offset: idPos, Msg: "malformed section id", Err: InvalidSectionIDError(sid)}
		}
		if sid != SectionIDCustom {
			if sid.order() <= lastOrder {
				return nil, &MalformedError{Offset: idPos, Msg: "unexpected " + sid.String() + " section: sections must occur at most once and in the prescribed order"}
			}
			lastOrder = sid.order()
		}

		size, err := r.VarUint32()
		if err != nil {
			return nil, err
		}
		if uint64(size) > uint64(r.Remaining()) {
			return nil, r.Errorf("section %s size %d exceeds remaining module size %d", sid, size, r.Remaining())
		}

		start := r.Pos()
		body, _ := r.Bytes(size)
		sections = append(sections, RawSection{
			Start: start,
			End:   r.Pos(),
			ID:    sid,
			Bytes: body,
		})
	}
	return sections, nil
}

// Copyright 2018 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package leb128

import (
	"bytes"
	"fmt"
	"math/rand"
	"testing"
	"time"
)

func TestWriteVarUint32(t *testing.T) {
	for _, c := range casesUint {
		t.Run(fmt.Sprint(c.v), func(t *testing.T) {
			buf := new(bytes.Buffer)
			_, err := WriteVarUint32(buf, c.v)
			if err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(buf.Bytes(), c.b) {
				t.Fatalf("unexpected output: %x", buf.Bytes())
			}
		})
	}
}

func TestWriteVarint64(t *testing.T) {
	for _, c := range casesInt {
		t.Run(fmt.Sprint(c.v), func(t *testing.T) {
			buf := new(bytes.Buffer)
			_, err := WriteVarint64(buf, c.v)
			if err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(buf.Bytes(), c.b) {
				t.Fatalf("unexpected output: %x", buf.Bytes())
			}
		})
	}
}

func TestWriteGetInt64(t *testing.T) {
	r := rand.New(rand.NewSource(time.Now().Unix()))

	var buf bytes.Buffer
	for i := 0; i < 100000; i++ {
		n := r.Int63()
		if i%2 == 1 {
			n = -n
		}

		buf.Reset()
		_, err := WriteVarint64(&buf, n)
		if err != nil {
			t.Fatalf("WriteVarint64: %v", err)
		}

		v, sz, err := GetVarint64(buf.Bytes())
		if err != nil {
			t.Fatalf("GetVarint64: %v", err)
		}
		if v != n || sz != buf.Len() {
			t.Fatalf("wrote %v; read %v (%v of %v bytes)", n, v, sz, buf.Len())
		}

		fv, fsz := FastInt64(buf.Bytes())
		if fv != n || fsz != sz {
			t.Fatalf("wrote %v; fast read %v", n, fv)
		}
	}
}

func TestWriteGetInt32(t *testing.T) {
	r := rand.New(rand.NewSource(time.Now().Unix()))

	var buf bytes.Buffer
	for i := 0; i < 100000; i++ {
		n := r.Int31()
		if i%2 == 1 {
			n = -n
		}

		buf.Reset()
		_, err := WriteVarint32(&buf, n)
		if err != nil {
			t.Fatalf("WriteVarint32: %v", err)
		}

		v, _, err := GetVarint32(buf.Bytes())
		if err != nil {
			t.Fatalf("GetVarint32: %v", err)
		}
		if v != n {
			t.Fatalf("wrote %v; read %v", n, v)
		}

		if fv, _ := FastInt32(buf.Bytes()); fv != n {
			t.Fatalf("wrote %v; fast read %v", n, fv)
		}
	}
}

func TestWriteGetUint32(t *testing.T) {
	r := rand.New(rand.NewSource(time.Now().Unix()))

	var buf bytes.Buffer
	for i := 0; i < 100000; i++ {
		n := r.Uint32()

		buf.Reset()
		_, err := WriteVarUint32(&buf, n)
		if err != nil {
			t.Fatalf("WriteVarUint32: %v", err)
		}

		v, _, err := GetVarUint32(buf.Bytes())
		if err != nil {
			t.Fatalf("GetVarUint32: %v", err)
		}
		if v != n {
			t.Fatalf("wrote %v; read %v", n, v)
		}

		if fv, _ := FastUint32(buf.Bytes()); fv != n {
			t.Fatalf("wrote %v; fast read %v", n, fv)
		}
	}
}

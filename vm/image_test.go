package vm

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// Image tests
// ---------------------------------------------------------------------------

// Test that globals, macros, symbols and strings survive a save and load.
func TestImageRoundTrip(t *testing.T) {
	m, _, _ := newTestMachine(4096, 4096)
	m.Define("greeting", m.MkString("hello"))
	m.Define("numbers", m.List(m.MkFixnum(1), m.MkFixnum(2)))
	m.DefineMacro(m.Intern("my-macro"), m.MkCatchTag(Nil))
	m.Gensym()

	var buf bytes.Buffer
	id, err := m.SaveImage(&buf)
	if err != nil {
		t.Fatalf("SaveImage failed: %v", err)
	}
	if id == uuid.Nil {
		t.Error("image id not set")
	}

	m2, _, _ := newTestMachine(4096, 4096)
	if err := m2.LoadImage(bytes.NewReader(buf.Bytes())); err != nil {
		t.Fatalf("LoadImage failed: %v", err)
	}
	if m2.ImageID() != id {
		t.Errorf("loaded id = %s, want %s", m2.ImageID(), id)
	}
	if v, ok := m2.Global("greeting"); !ok || m2.StringValue(v) != "hello" {
		t.Errorf("greeting = %s", m2.Sprint(v, true))
	}
	if v, ok := m2.Global("numbers"); !ok || m2.Sprint(v, true) != "(1 2)" {
		t.Errorf("numbers = %s", m2.Sprint(v, true))
	}
	sym, ok := m2.LookupSymbol("my-macro")
	if !ok {
		t.Fatal("symbol my-macro lost")
	}
	if fn, ok := m2.Macro(sym); !ok || !m2.IsCatchTag(fn) {
		t.Error("macro binding lost")
	}
	if m2.Intern("greeting") != m2.symIndex["greeting"] {
		t.Error("interning after load created a duplicate symbol")
	}
	if g := m2.Gensym(); m2.SymbolName(g) != "G2" {
		t.Errorf("gensym after load = %s, want G2", m2.SymbolName(g))
	}

	// the loaded heap keeps working
	for i := 0; i < 10000; i++ {
		m2.Cons(Nil, Nil)
	}
	if v, _ := m2.Global("greeting"); m2.StringValue(v) != "hello" {
		t.Error("global lost after collection in loaded image")
	}
	if err := m2.WriteString(m2.Outport(), "ok\n"); err != nil {
		t.Errorf("console port unusable after load: %v", err)
	}
}

// Test that images saved with other capacities are rejected.
func TestImageCapacityMismatch(t *testing.T) {
	m, _, _ := newTestMachine(4096, 4096)
	var buf bytes.Buffer
	if _, err := m.SaveImage(&buf); err != nil {
		t.Fatal(err)
	}
	m2, _, _ := newTestMachine(8192, 4096)
	if err := m2.LoadImage(&buf); !errors.Is(err, ErrCapacityMismatch) {
		t.Errorf("err = %v, want ErrCapacityMismatch", err)
	}
}

// Test that garbage is rejected with ErrBadMagic.
func TestImageBadMagic(t *testing.T) {
	m, _, _ := newTestMachine(4096, 4096)
	if err := m.LoadImage(bytes.NewReader([]byte("not an image"))); !errors.Is(err, ErrBadMagic) {
		t.Errorf("err = %v, want ErrBadMagic", err)
	}
}

// Test file helpers and image inspection.
func TestImageFileAndInspect(t *testing.T) {
	m, _, _ := newTestMachine(4096, 4096)
	m.Define("x", True)
	path := filepath.Join(t.TempDir(), "test.image")
	if err := m.SaveImageFile(path); err != nil {
		t.Fatalf("SaveImageFile failed: %v", err)
	}

	var buf bytes.Buffer
	if _, err := m.SaveImage(&buf); err != nil {
		t.Fatal(err)
	}
	info, err := InspectImage(&buf)
	if err != nil {
		t.Fatalf("InspectImage failed: %v", err)
	}
	if info.Nodes != 4096 || info.VCells != 4096 {
		t.Errorf("capacities = %d/%d", info.Nodes, info.VCells)
	}
	if info.FreeNodes != m.FreeNodes() {
		t.Errorf("free nodes = %d, want %d", info.FreeNodes, m.FreeNodes())
	}
	if info.Globals < 3 {
		t.Errorf("globals = %d, want at least 3", info.Globals)
	}

	m2, _, _ := newTestMachine(4096, 4096)
	if err := m2.LoadImageFile(path); err != nil {
		t.Fatalf("LoadImageFile failed: %v", err)
	}
	if v, ok := m2.Global("x"); !ok || v != True {
		t.Error("global x lost")
	}
}

// corruptImage saves m, applies damage to the decoded image and encodes it
// again.
func corruptImage(t *testing.T, m *Machine, damage func(img *imageFile)) []byte {
	t.Helper()
	var buf bytes.Buffer
	if _, err := m.SaveImage(&buf); err != nil {
		t.Fatal(err)
	}
	var img imageFile
	if err := cbor.Unmarshal(buf.Bytes(), &img); err != nil {
		t.Fatal(err)
	}
	damage(&img)
	data, err := cbor.Marshal(&img)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

// Test that cells pointing outside the node pool are rejected instead of
// being installed.
func TestImageOutOfRangeCells(t *testing.T) {
	m, _, _ := newTestMachine(4096, 4096)
	pair := m.Cons(m.MkFixnum(1), Nil)
	m.Define("pair", pair)
	vec := m.AllocVector(TVector, 2)
	m.Define("vec", vec)
	m.Define("str", m.MkString("s"))

	tests := []struct {
		name   string
		damage func(img *imageFile)
	}{
		{"pair car", func(img *imageFile) { img.Car[pair] = Cell(img.Nodes + 5) }},
		{"pair cdr", func(img *imageFile) { img.Cdr[pair] = Cell(img.Nodes) }},
		{"atom link", func(img *imageFile) { img.Cdr[m.Car(pair)] = Cell(img.Nodes + 1) }},
		{"vector element", func(img *imageFile) { img.Vec[m.Cdr(vec)] = Cell(img.Nodes * 2) }},
		{"vector length", func(img *imageFile) { img.Vec[int(m.Cdr(vec))+vecLen] = -3 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := corruptImage(t, m, tt.damage)
			m2, _, _ := newTestMachine(4096, 4096)
			if err := m2.LoadImage(bytes.NewReader(data)); !errors.Is(err, ErrCorruptImage) {
				t.Errorf("err = %v, want ErrCorruptImage", err)
			}
		})
	}

	// string and bytecode words are raw and pass the checks
	data := corruptImage(t, m, func(img *imageFile) {})
	m2, _, _ := newTestMachine(4096, 4096)
	if err := m2.LoadImage(bytes.NewReader(data)); err != nil {
		t.Errorf("undamaged image rejected: %v", err)
	}
}

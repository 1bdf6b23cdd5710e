package vm

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// Image format
// ---------------------------------------------------------------------------

// ImageMagic identifies an LS9 image.
var ImageMagic = [4]byte{'L', 'S', '9', 'I'}

// ImageVersion is the current image format version.
const ImageVersion uint32 = 1

// Image errors.
var (
	ErrBadMagic         = errors.New("vm: not an LS9 image")
	ErrBadVersion       = errors.New("vm: unsupported image version")
	ErrCapacityMismatch = errors.New("vm: image capacity does not match configuration")
	ErrCorruptImage     = errors.New("vm: corrupt image")
)

// imageFile is the on-disk snapshot. Only the pools and the global roots
// are saved; the registers and control stacks are empty in a fresh image.
type imageFile struct {
	Magic    [4]byte `cbor:"1,keyasint"`
	Version  uint32  `cbor:"2,keyasint"`
	ID       []byte  `cbor:"3,keyasint"`
	Created  int64   `cbor:"4,keyasint"`
	Nodes    int     `cbor:"5,keyasint"`
	VCells   int     `cbor:"6,keyasint"`
	Car      []Cell  `cbor:"7,keyasint"`
	Cdr      []Cell  `cbor:"8,keyasint"`
	Tag      []byte  `cbor:"9,keyasint"`
	FreeList Cell    `cbor:"10,keyasint"`
	Vec      []Cell  `cbor:"11,keyasint"`
	Symbols  Cell    `cbor:"12,keyasint"`
	Globals  Cell    `cbor:"13,keyasint"`
	Macros   Cell    `cbor:"14,keyasint"`
	Gensym   int     `cbor:"15,keyasint"`
}

// ImageInfo summarises an image without installing it.
type ImageInfo struct {
	ID        uuid.UUID
	Version   uint32
	Created   time.Time
	Nodes     int
	VCells    int
	FreeNodes int
	UsedVec   int
	Symbols   int
	Globals   int
}

var imageEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("vm: failed to create CBOR enc mode: %v", err))
	}
	imageEncMode = em
}

// ---------------------------------------------------------------------------
// Saving
// ---------------------------------------------------------------------------

// SaveImage collects garbage and writes a snapshot of the heap and the
// global roots to w. It returns the new image's ID.
func (m *Machine) SaveImage(w io.Writer) (uuid.UUID, error) {
	m.Collect()
	id := uuid.New()
	img := imageFile{
		Magic:    ImageMagic,
		Version:  ImageVersion,
		ID:       id[:],
		Created:  time.Now().Unix(),
		Nodes:    len(m.car),
		VCells:   len(m.vec),
		Car:      m.car,
		Cdr:      m.cdr,
		Tag:      m.tag,
		FreeList: m.freeList,
		Vec:      m.vec[:m.freeVec],
		Symbols:  m.symbols,
		Globals:  m.globals,
		Macros:   m.macros,
		Gensym:   m.gensymCounter,
	}
	data, err := imageEncMode.Marshal(&img)
	if err != nil {
		return uuid.Nil, fmt.Errorf("vm: encode image: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return uuid.Nil, fmt.Errorf("vm: write image: %w", err)
	}
	m.imageID = id
	m.log.Infof("image %s saved: %d nodes free, %d vector cells used", id, m.nfree, m.freeVec)
	return id, nil
}

// SaveImageFile writes an image to path.
func (m *Machine) SaveImageFile(path string) error {
	var buf bytes.Buffer
	if _, err := m.SaveImage(&buf); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("vm: write image %s: %w", path, err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

func decodeImage(r io.Reader) (*imageFile, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("vm: read image: %w", err)
	}
	var img imageFile
	if err := cbor.Unmarshal(data, &img); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadMagic, err)
	}
	if img.Magic != ImageMagic {
		return nil, ErrBadMagic
	}
	if img.Version != ImageVersion {
		return nil, fmt.Errorf("%w: %d", ErrBadVersion, img.Version)
	}
	if err := img.validate(); err != nil {
		return nil, err
	}
	return &img, nil
}

// validate checks the structural invariants of the pools.
func (img *imageFile) validate() error {
	n := img.Nodes
	switch {
	case len(img.Car) != n || len(img.Cdr) != n || len(img.Tag) != n:
		return fmt.Errorf("%w: node arrays do not match capacity %d", ErrCorruptImage, n)
	case len(img.Vec) > img.VCells:
		return fmt.Errorf("%w: vector pool exceeds capacity", ErrCorruptImage)
	case img.FreeList != Nil && (img.FreeList < 0 || int(img.FreeList) >= n):
		return fmt.Errorf("%w: free list head out of range", ErrCorruptImage)
	case len(img.ID) != 16:
		return fmt.Errorf("%w: bad image id", ErrCorruptImage)
	}
	for _, root := range []Cell{img.Symbols, img.Globals, img.Macros} {
		if root != Nil && (root < 0 || int(root) >= n) {
			return fmt.Errorf("%w: root out of range", ErrCorruptImage)
		}
	}
	for i, t := range img.Tag {
		switch {
		case t&VectorTag != 0:
			off := int(img.Cdr[i])
			if off < vecHeaderSize || off > len(img.Vec) || img.Vec[off+vecLink] != Cell(i) ||
				img.Vec[off+vecLen] < 0 || off+int(img.Vec[off+vecLen]) > len(img.Vec) {
				return fmt.Errorf("%w: vector %d has no backing region", ErrCorruptImage, i)
			}
			if err := img.validateElements(i, off); err != nil {
				return err
			}
		case t&AtomTag != 0:
			if !img.validCell(img.Cdr[i]) {
				return fmt.Errorf("%w: atom %d links out of range", ErrCorruptImage, i)
			}
		default:
			if !img.validCell(img.Car[i]) || !img.validCell(img.Cdr[i]) {
				return fmt.Errorf("%w: pair %d points out of range", ErrCorruptImage, i)
			}
		}
	}
	return nil
}

// validateElements checks the cells held by vector i, whose storage
// starts at off. Only general vectors and the literal slot of bytecode
// hold cells.
func (img *imageFile) validateElements(i, off int) error {
	n := int(img.Vec[off+vecLen])
	switch img.Car[i] {
	case TBytecode:
		n = min(n, 1)
	case TVector:
	default:
		return nil
	}
	for _, c := range img.Vec[off : off+n] {
		if !img.validCell(c) {
			return fmt.Errorf("%w: vector %d holds a cell out of range", ErrCorruptImage, i)
		}
	}
	return nil
}

func (img *imageFile) inRange(c Cell) bool {
	return c >= 0 && int(c) < img.Nodes
}

// validCell reports whether c is an immediate or a node of the image.
func (img *imageFile) validCell(c Cell) bool {
	return c < 0 || int(c) < img.Nodes
}

// countFree walks the free list.
func (img *imageFile) countFree() int {
	k := 0
	for p := img.FreeList; img.inRange(p) && k <= img.Nodes; p = img.Cdr[p] {
		k++
	}
	return k
}

// LoadImage replaces the heap and the global roots with the contents of an
// image. The image capacities must match the machine's configuration.
func (m *Machine) LoadImage(r io.Reader) error {
	img, err := decodeImage(r)
	if err != nil {
		return err
	}
	if img.Nodes != m.cfg.Nodes || img.VCells != m.cfg.VCells {
		return fmt.Errorf("%w: image has %d nodes and %d vector cells, configured %d and %d",
			ErrCapacityMismatch, img.Nodes, img.VCells, m.cfg.Nodes, m.cfg.VCells)
	}
	m.flushOutput()
	m.CloseAllPorts()

	h := &Heap{
		car:      img.Car,
		cdr:      img.Cdr,
		tag:      img.Tag,
		freeList: img.FreeList,
		nfree:    img.countFree(),
		vec:      make([]Cell, img.VCells),
		freeVec:  len(img.Vec),
	}
	copy(h.vec, img.Vec)
	m.Heap = h
	m.attachHeap()

	m.initState()
	m.symbols = img.Symbols
	m.globals = img.Globals
	m.macros = img.Macros
	m.gensymCounter = img.Gensym
	m.rebuildSymbolIndex()
	m.rebuildBindingIndexes()
	m.initPorts()
	m.initSymbols()
	copy(m.imageID[:], img.ID)
	m.log.Infof("image %s loaded: %d symbols", m.imageID, len(m.symIndex))
	return nil
}

// LoadImageFile loads an image from path.
func (m *Machine) LoadImageFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("vm: open image: %w", err)
	}
	defer f.Close()
	return m.LoadImage(f)
}

// ImageID returns the ID of the image last saved or loaded, or uuid.Nil.
func (m *Machine) ImageID() uuid.UUID {
	return m.imageID
}

// InspectImage decodes and validates an image and summarises it.
func InspectImage(r io.Reader) (ImageInfo, error) {
	img, err := decodeImage(r)
	if err != nil {
		return ImageInfo{}, err
	}
	info := ImageInfo{
		Version:   img.Version,
		Created:   time.Unix(img.Created, 0),
		Nodes:     img.Nodes,
		VCells:    img.VCells,
		FreeNodes: img.countFree(),
		UsedVec:   len(img.Vec),
	}
	copy(info.ID[:], img.ID)
	for p := img.Symbols; img.inRange(p) && info.Symbols <= img.Nodes; p = img.Cdr[p] {
		info.Symbols++
	}
	for p := img.Globals; img.inRange(p) && info.Globals <= img.Nodes; p = img.Cdr[p] {
		info.Globals++
	}
	return info, nil
}

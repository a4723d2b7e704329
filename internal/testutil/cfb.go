package testutil

import (
	"encoding/binary"
	"sort"
	"strings"
	"testing"
	"unicode/utf16"
)

// Compound File Binary (version 3) layout constants.
const (
	cfbSectorSize     = 512
	cfbMiniSectorSize = 64
	cfbMiniCutoff     = 4096
	cfbDirEntrySize   = 128
	cfbIDsPerSector   = cfbSectorSize / 4
	cfbHeaderDIFATs   = 109

	cfbFreeSect   = 0xFFFFFFFF
	cfbEndOfChain = 0xFFFFFFFE
	cfbFATSect    = 0xFFFFFFFD
	cfbNoStream   = 0xFFFFFFFF

	cfbTypeStorage = 1
	cfbTypeStream  = 2
	cfbTypeRoot    = 5
	cfbColorBlack  = 1
)

var cfbSignature = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}

// CompoundStream is one stream to write with BuildCompoundFile.
type CompoundStream struct {
	Path []string
	Data []byte
}

type cfbNode struct {
	name     string
	isStream bool
	data     []byte
	children map[string]*cfbNode
	id       uint32
	start    uint32
	size     uint32
	left     uint32
	right    uint32
	child    uint32
}

// BuildCompoundFile encodes streams as a minimal version 3 compound file.
//
// Intermediate storages are created from the stream paths. Streams below the
// 4096-byte cutoff are placed in the mini stream, as readers expect.
func BuildCompoundFile(tb testing.TB, streams []CompoundStream) []byte {
	tb.Helper()

	root := &cfbNode{name: "Root Entry", children: map[string]*cfbNode{}}
	for _, s := range streams {
		if len(s.Path) == 0 {
			tb.Fatalf("BuildCompoundFile: empty stream path")
		}
		node := root
		for i, elem := range s.Path {
			if len(utf16.Encode([]rune(elem))) > 31 {
				tb.Fatalf("BuildCompoundFile: name %q too long", elem)
			}
			last := i == len(s.Path)-1
			child, ok := node.children[elem]
			if !ok {
				child = &cfbNode{name: elem, isStream: last, children: map[string]*cfbNode{}}
				node.children[elem] = child
			}
			if child.isStream != last {
				tb.Fatalf("BuildCompoundFile: %q used as both stream and storage", strings.Join(s.Path[:i+1], "/"))
			}
			if last {
				child.data = s.Data
			}
			node = child
		}
	}

	// Assign directory IDs depth first.
	var nodes []*cfbNode
	var assign func(n *cfbNode)
	assign = func(n *cfbNode) {
		n.id = uint32(len(nodes)) //nolint:gosec // test fixtures are small
		nodes = append(nodes, n)
		for _, c := range sortedChildren(n) {
			assign(c)
		}
	}
	assign(root)

	// Link siblings as a right-leaning chain in compare order.
	for _, n := range nodes {
		n.left, n.right, n.child = cfbNoStream, cfbNoStream, cfbNoStream
	}
	for _, n := range nodes {
		kids := sortedChildren(n)
		if len(kids) == 0 {
			continue
		}
		n.child = kids[0].id
		for i := 0; i+1 < len(kids); i++ {
			kids[i].right = kids[i+1].id
		}
	}

	var fat []uint32
	var sectors [][]byte
	allocChain := func(data []byte) uint32 {
		if len(data) == 0 {
			return cfbEndOfChain
		}
		start := uint32(len(sectors)) //nolint:gosec // test fixtures are small
		for off := 0; off < len(data); off += cfbSectorSize {
			sec := make([]byte, cfbSectorSize)
			copy(sec, data[off:])
			sectors = append(sectors, sec)
			fat = append(fat, uint32(len(sectors))) //nolint:gosec // test fixtures are small
		}
		fat[len(fat)-1] = cfbEndOfChain
		return start
	}

	// Regular streams first, then the mini stream.
	var mini []byte
	var miniFAT []uint32
	for _, n := range nodes {
		if !n.isStream {
			continue
		}
		n.size = uint32(len(n.data)) //nolint:gosec // test fixtures are small
		switch {
		case len(n.data) == 0:
			n.start = cfbEndOfChain
		case len(n.data) >= cfbMiniCutoff:
			n.start = allocChain(n.data)
		default:
			n.start = uint32(len(miniFAT)) //nolint:gosec // test fixtures are small
			for off := 0; off < len(n.data); off += cfbMiniSectorSize {
				sec := make([]byte, cfbMiniSectorSize)
				copy(sec, n.data[off:])
				mini = append(mini, sec...)
				miniFAT = append(miniFAT, uint32(len(miniFAT)+1)) //nolint:gosec // test fixtures are small
			}
			miniFAT[len(miniFAT)-1] = cfbEndOfChain
		}
	}

	root.start = allocChain(mini)
	root.size = uint32(len(mini)) //nolint:gosec // test fixtures are small

	miniFATStart := uint32(cfbEndOfChain)
	miniFATSectors := 0
	if len(miniFAT) > 0 {
		buf := make([]byte, 0, len(miniFAT)*4)
		for _, v := range miniFAT {
			buf = binary.LittleEndian.AppendUint32(buf, v)
		}
		for len(buf)%cfbSectorSize != 0 {
			buf = binary.LittleEndian.AppendUint32(buf, cfbFreeSect)
		}
		miniFATSectors = len(buf) / cfbSectorSize
		miniFATStart = allocChain(buf)
	}

	dir := make([]byte, 0, len(nodes)*cfbDirEntrySize)
	for _, n := range nodes {
		dir = append(dir, encodeDirEntry(n, n == root)...)
	}
	for len(dir)%cfbSectorSize != 0 {
		dir = append(dir, emptyDirEntry()...)
	}
	dirStart := allocChain(dir)

	// FAT sectors must also describe themselves.
	fatSectors := 0
	for {
		need := (len(sectors) + fatSectors + cfbIDsPerSector - 1) / cfbIDsPerSector
		if need == fatSectors {
			break
		}
		fatSectors = need
	}
	if fatSectors > cfbHeaderDIFATs {
		tb.Fatalf("BuildCompoundFile: %d FAT sectors exceed header DIFAT", fatSectors)
	}
	fatStart := len(sectors)
	for i := 0; i < fatSectors; i++ {
		fat = append(fat, cfbFATSect)
	}
	for len(fat)%cfbIDsPerSector != 0 {
		fat = append(fat, cfbFreeSect)
	}
	for i := 0; i < fatSectors; i++ {
		sec := make([]byte, cfbSectorSize)
		for j := 0; j < cfbIDsPerSector; j++ {
			binary.LittleEndian.PutUint32(sec[j*4:], fat[i*cfbIDsPerSector+j])
		}
		sectors = append(sectors, sec)
	}

	header := make([]byte, cfbSectorSize)
	copy(header, cfbSignature)
	binary.LittleEndian.PutUint16(header[24:], 0x003E) // minor version
	binary.LittleEndian.PutUint16(header[26:], 0x0003) // major version
	binary.LittleEndian.PutUint16(header[28:], 0xFFFE) // byte order
	binary.LittleEndian.PutUint16(header[30:], 9)      // sector shift
	binary.LittleEndian.PutUint16(header[32:], 6)      // mini sector shift
	binary.LittleEndian.PutUint32(header[44:], uint32(fatSectors)) //nolint:gosec // bounded above
	binary.LittleEndian.PutUint32(header[48:], dirStart)
	binary.LittleEndian.PutUint32(header[56:], cfbMiniCutoff)
	binary.LittleEndian.PutUint32(header[60:], miniFATStart)
	binary.LittleEndian.PutUint32(header[64:], uint32(miniFATSectors)) //nolint:gosec // test fixtures are small
	binary.LittleEndian.PutUint32(header[68:], cfbEndOfChain)         // first DIFAT sector
	for i := 0; i < cfbHeaderDIFATs; i++ {
		v := uint32(cfbFreeSect)
		if i < fatSectors {
			v = uint32(fatStart + i) //nolint:gosec // test fixtures are small
		}
		binary.LittleEndian.PutUint32(header[76+i*4:], v)
	}

	out := make([]byte, 0, cfbSectorSize*(len(sectors)+1))
	out = append(out, header...)
	for _, sec := range sectors {
		out = append(out, sec...)
	}
	return out
}

func sortedChildren(n *cfbNode) []*cfbNode {
	kids := make([]*cfbNode, 0, len(n.children))
	for _, c := range n.children {
		kids = append(kids, c)
	}
	sort.Slice(kids, func(i, j int) bool {
		a, b := utf16.Encode([]rune(kids[i].name)), utf16.Encode([]rune(kids[j].name))
		if len(a) != len(b) {
			return len(a) < len(b)
		}
		return strings.ToUpper(kids[i].name) < strings.ToUpper(kids[j].name)
	})
	return kids
}

func encodeDirEntry(n *cfbNode, isRoot bool) []byte {
	e := make([]byte, cfbDirEntrySize)
	name := append(utf16.Encode([]rune(n.name)), 0)
	for i, u := range name {
		binary.LittleEndian.PutUint16(e[i*2:], u)
	}
	binary.LittleEndian.PutUint16(e[64:], uint16(len(name)*2)) //nolint:gosec // names are at most 32 units
	switch {
	case isRoot:
		e[66] = cfbTypeRoot
	case n.isStream:
		e[66] = cfbTypeStream
	default:
		e[66] = cfbTypeStorage
	}
	e[67] = cfbColorBlack
	binary.LittleEndian.PutUint32(e[68:], n.left)
	binary.LittleEndian.PutUint32(e[72:], n.right)
	binary.LittleEndian.PutUint32(e[76:], n.child)
	if isRoot || n.isStream {
		binary.LittleEndian.PutUint32(e[116:], n.start)
		binary.LittleEndian.PutUint32(e[120:], n.size)
	}
	return e
}

func emptyDirEntry() []byte {
	e := make([]byte, cfbDirEntrySize)
	binary.LittleEndian.PutUint32(e[68:], cfbNoStream)
	binary.LittleEndian.PutUint32(e[72:], cfbNoStream)
	binary.LittleEndian.PutUint32(e[76:], cfbNoStream)
	return e
}

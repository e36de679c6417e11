package loader_test

import (
	"encoding/binary"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/Kyllano/TacOS/loader"
)

const (
	machineRISCV  = 243
	machineX86_64 = 62

	pfX = 0x1
	pfW = 0x2
	pfR = 0x4
)

// testSegment describes one program header of a generated ELF file.
type testSegment struct {
	ptype   uint32
	flags   uint32
	vaddr   uint64
	data    []byte
	memSize uint64
}

func loadSeg(vaddr uint64, flags uint32, data []byte) testSegment {
	return testSegment{ptype: 1, flags: flags, vaddr: vaddr, data: data, memSize: uint64(len(data))}
}

// writeELF64 writes a little-endian ELF64 executable with the given
// program headers and no section headers.
func writeELF64(path string, machine uint16, entry uint64, segs ...testSegment) {
	const ehsize, phentsize = 64, 56

	header := make([]byte, ehsize)
	copy(header[0:4], []byte{0x7f, 'E', 'L', 'F'})
	header[4] = 2 // 64-bit
	header[5] = 1 // little endian
	header[6] = 1 // version
	binary.LittleEndian.PutUint16(header[16:18], 2) // executable
	binary.LittleEndian.PutUint16(header[18:20], machine)
	binary.LittleEndian.PutUint32(header[20:24], 1)
	binary.LittleEndian.PutUint64(header[24:32], entry)
	binary.LittleEndian.PutUint64(header[32:40], ehsize)
	binary.LittleEndian.PutUint16(header[52:54], ehsize)
	binary.LittleEndian.PutUint16(header[54:56], phentsize)
	binary.LittleEndian.PutUint16(header[56:58], uint16(len(segs)))
	binary.LittleEndian.PutUint16(header[58:60], 64)

	offset := uint64(ehsize + phentsize*len(segs))
	out := header
	var payload []byte
	for _, s := range segs {
		ph := make([]byte, phentsize)
		binary.LittleEndian.PutUint32(ph[0:4], s.ptype)
		binary.LittleEndian.PutUint32(ph[4:8], s.flags)
		binary.LittleEndian.PutUint64(ph[8:16], offset)
		binary.LittleEndian.PutUint64(ph[16:24], s.vaddr)
		binary.LittleEndian.PutUint64(ph[24:32], s.vaddr)
		binary.LittleEndian.PutUint64(ph[32:40], uint64(len(s.data)))
		binary.LittleEndian.PutUint64(ph[40:48], s.memSize)
		binary.LittleEndian.PutUint64(ph[48:56], 0x1000)
		out = append(out, ph...)
		payload = append(payload, s.data...)
		offset += uint64(len(s.data))
	}
	out = append(out, payload...)

	Expect(os.WriteFile(path, out, 0o644)).To(Succeed())
}

var _ = Describe("ELF Loader", func() {
	var tempDir string

	// addi a0, zero, 42; ecall
	code := []byte{0x13, 0x05, 0xa0, 0x02, 0x73, 0x00, 0x00, 0x00}

	BeforeEach(func() {
		tempDir = GinkgoT().TempDir()
	})

	Context("with a valid RISC-V ELF binary", func() {
		var prog *loader.Program

		BeforeEach(func() {
			path := filepath.Join(tempDir, "test.elf")
			writeELF64(path, machineRISCV, 0x1004, loadSeg(0x1000, pfR|pfX, code))

			var err error
			prog, err = loader.Load(path)
			Expect(err).NotTo(HaveOccurred())
		})

		It("should extract the entry point", func() {
			Expect(prog.EntryPoint).To(Equal(uint64(0x1004)))
		})

		It("should load the segment contents and permissions", func() {
			Expect(prog.Segments).To(HaveLen(1))
			seg := prog.Segments[0]
			Expect(seg.VirtAddr).To(Equal(uint64(0x1000)))
			Expect(seg.Data).To(Equal(code))
			Expect(seg.Flags).To(Equal(loader.SegmentFlagRead | loader.SegmentFlagExecute))
			Expect(prog.End()).To(Equal(uint64(0x1008)))
		})
	})

	It("should load multiple PT_LOAD segments", func() {
		path := filepath.Join(tempDir, "multi.elf")
		data := []byte{1, 2, 3, 4}
		writeELF64(path, machineRISCV, 0,
			loadSeg(0, pfR|pfX, code),
			loadSeg(0x400, pfR|pfW, data),
			testSegment{ptype: 4, vaddr: 0x800, data: []byte{9}, memSize: 1}, // PT_NOTE
		)

		prog, err := loader.Load(path)
		Expect(err).NotTo(HaveOccurred())

		Expect(prog.Segments).To(HaveLen(2))
		Expect(prog.Segments[1].Data).To(Equal(data))
		Expect(prog.Segments[1].Flags & loader.SegmentFlagWrite).NotTo(BeZero())
	})

	It("should keep the memory size of BSS segments", func() {
		path := filepath.Join(tempDir, "bss.elf")
		seg := loadSeg(0x600, pfR|pfW, []byte{1, 2, 3, 4})
		seg.memSize = 1024
		writeELF64(path, machineRISCV, 0, seg)

		prog, err := loader.Load(path)
		Expect(err).NotTo(HaveOccurred())

		Expect(prog.Segments[0].Data).To(HaveLen(4))
		Expect(prog.Segments[0].MemSize).To(Equal(uint64(1024)))
		Expect(prog.End()).To(Equal(uint64(0x600 + 1024)))
	})

	It("should return an empty segment list without PT_LOAD", func() {
		path := filepath.Join(tempDir, "noload.elf")
		writeELF64(path, machineRISCV, 0x400)

		prog, err := loader.Load(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(prog.Segments).To(BeEmpty())
		Expect(prog.EntryPoint).To(Equal(uint64(0x400)))
	})

	Context("with an invalid file", func() {
		It("should fail on a missing file", func() {
			_, err := loader.Load("/nonexistent/path/to/file.elf")
			Expect(err).To(MatchError(ContainSubstring("failed to open")))
		})

		It("should fail on a non-ELF file", func() {
			path := filepath.Join(tempDir, "not-elf.bin")
			Expect(os.WriteFile(path, []byte("not an elf file"), 0o644)).To(Succeed())

			_, err := loader.Load(path)
			Expect(err).To(HaveOccurred())
		})

		It("should reject other architectures", func() {
			path := filepath.Join(tempDir, "x86.elf")
			writeELF64(path, machineX86_64, 0)

			_, err := loader.Load(path)
			Expect(err).To(MatchError(ContainSubstring("not a RISC-V")))
		})

		It("should reject segments larger in the file than in memory", func() {
			path := filepath.Join(tempDir, "bad.elf")
			seg := loadSeg(0, pfR, code)
			seg.memSize = 4
			writeELF64(path, machineRISCV, 0, seg)

			_, err := loader.Load(path)
			Expect(err).To(MatchError(ContainSubstring("larger in the file")))
			Expect(err).To(MatchError(loader.ErrBadLayout))
		})

		It("should reject segments wrapping around the address space", func() {
			path := filepath.Join(tempDir, "wrap.elf")
			seg := loadSeg(0xFFFFFFFFFFFFF000, pfR|pfX, code)
			seg.memSize = 0x2000
			writeELF64(path, machineRISCV, 0, seg)

			_, err := loader.Load(path)
			Expect(err).To(MatchError(loader.ErrBadLayout))
			Expect(err).To(MatchError(ContainSubstring("wraps around")))
		})

		It("should reject segments running past the end of the file", func() {
			path := filepath.Join(tempDir, "short.elf")
			writeELF64(path, machineRISCV, 0, loadSeg(0, pfR|pfX, code))
			info, err := os.Stat(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(os.Truncate(path, info.Size()-4)).To(Succeed())

			_, err = loader.Load(path)
			Expect(err).To(MatchError(loader.ErrBadLayout))
		})
	})
})

var _ = Describe("Program layout", func() {
	It("should accept segments inside the table", func() {
		prog := &loader.Program{Segments: []loader.Segment{
			{VirtAddr: 0, Data: []byte{1}, MemSize: 128},
			{VirtAddr: 7 * 128, MemSize: 128},
		}}
		Expect(prog.CheckLayout(128, 8)).To(Succeed())
	})

	It("should reject a segment reaching past the last table entry", func() {
		prog := &loader.Program{Segments: []loader.Segment{{VirtAddr: 7 * 128, MemSize: 129}}}
		Expect(prog.CheckLayout(128, 8)).To(MatchError(loader.ErrBadLayout))
	})

	It("should reject a segment with more data than memory", func() {
		prog := &loader.Program{Segments: []loader.Segment{{Data: []byte{1, 2}, MemSize: 1}}}
		Expect(prog.CheckLayout(128, 8)).To(MatchError(ContainSubstring("larger in the file")))
	})

	It("should report the pages a segment touches", func() {
		first, last, ok := loader.Segment{VirtAddr: 100, MemSize: 200}.Pages(128)
		Expect(ok).To(BeTrue())
		Expect(first).To(Equal(uint64(0)))
		Expect(last).To(Equal(uint64(2)))

		_, _, ok = loader.Segment{VirtAddr: 100}.Pages(128)
		Expect(ok).To(BeFalse())
	})
})

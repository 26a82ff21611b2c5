// Package filesection provides contiguous sections of files treated as a single unit.
package filesection

import "io"

// Section of a file.
type Section struct {
	File   ReadWriterAt
	Offset int64
	Length int64
	Name   string
}

// ReadWriterAt combines the io.ReaderAt and io.WriterAt interfaces.
type ReadWriterAt interface {
	io.ReaderAt
	io.WriterAt
}

// Sections is a contiguous view over parts of multiple files.
// A piece that crosses a file boundary maps to more than one section.
type Sections []Section

// Reader returns an io.Reader over the concatenated sections.
func (s Sections) Reader() io.Reader {
	readers := make([]io.Reader, len(s))
	for i := range s {
		readers[i] = io.NewSectionReader(s[i].File, s[i].Offset, s[i].Length)
	}
	return io.MultiReader(readers...)
}

// ReadAt implements the io.ReaderAt interface.
// It reads bytes from s at the given offset into p.
// Used when uploading blocks of a piece.
func (s Sections) ReadAt(p []byte, off int64) (int, error) {
	var readers []io.Reader
	var i int
	var pos int64

	// Skip sections up to offset
	for ; i < len(s); i++ {
		pos += s[i].Length
		if pos > off {
			break
		}
	}
	if i == len(s) {
		return 0, io.EOF
	}

	// Add the section containing the offset
	advance := s[i].Length - (pos - off)
	readers = append(readers, io.NewSectionReader(s[i].File, s[i].Offset+advance, s[i].Length-advance))

	// Add remaining sections
	for i++; i < len(s); i++ {
		readers = append(readers, io.NewSectionReader(s[i].File, s[i].Offset, s[i].Length))
		pos += s[i].Length
		if pos >= off+int64(len(p)) {
			break
		}
	}

	return io.ReadFull(io.MultiReader(readers...), p)
}

// Write implements the io.Writer interface.
// It writes the bytes in p into the files in s.
// Calling Write does not change a position in s,
// so len(p) must be equal to the total length of all sections for a full write.
func (s Sections) Write(p []byte) (n int, err error) {
	var m int
	for _, sec := range s {
		m, err = sec.File.WriteAt(p[:sec.Length], sec.Offset)
		n += m
		if err != nil {
			return
		}
		if int64(m) < sec.Length {
			err = io.ErrShortWrite
			return
		}
		p = p[m:]
	}
	return
}

package persistence

import (
	"encoding/binary"
	"fmt"
	"io"
	"unsafe"
)

// binaryWriter writes snapshot sections in optimized binary format.
// Slices are dumped as raw little-endian bytes; alignment is validated
// before every unsafe conversion.
type binaryWriter struct {
	w io.Writer
}

func newBinaryWriter(w io.Writer) *binaryWriter {
	return &binaryWriter{w: w}
}

// writeUint32Slice writes a uint32 slice as raw bytes (zero-copy).
func (bw *binaryWriter) writeUint32Slice(slice []uint32) error {
	if len(slice) == 0 {
		return nil
	}
	if err := validateUint32SliceAlignment(slice); err != nil {
		return err
	}

	byteSlice := unsafe.Slice((*byte)(unsafe.Pointer(&slice[0])), len(slice)*4)
	_, err := bw.w.Write(byteSlice)
	return err
}

// writeFloat64Slice writes a float64 slice as raw bytes (zero-copy).
func (bw *binaryWriter) writeFloat64Slice(slice []float64) error {
	if len(slice) == 0 {
		return nil
	}
	if err := validateFloat64SliceAlignment(slice); err != nil {
		return err
	}

	byteSlice := unsafe.Slice((*byte)(unsafe.Pointer(&slice[0])), len(slice)*8)
	_, err := bw.w.Write(byteSlice)
	return err
}

// binaryReader reads snapshot sections from binary format.
type binaryReader struct {
	r io.Reader
}

func newBinaryReader(r io.Reader) *binaryReader {
	return &binaryReader{r: r}
}

// readUint32Slice reads count uint32 values.
func (br *binaryReader) readUint32Slice(count int) ([]uint32, error) {
	if count == 0 {
		return nil, nil
	}
	slice := make([]uint32, count)
	byteSlice := unsafe.Slice((*byte)(unsafe.Pointer(&slice[0])), count*4)
	if _, err := io.ReadFull(br.r, byteSlice); err != nil {
		return nil, err
	}
	return slice, nil
}

// readFloat64Slice reads count float64 values.
func (br *binaryReader) readFloat64Slice(count int) ([]float64, error) {
	if count == 0 {
		return nil, nil
	}
	slice := make([]float64, count)
	byteSlice := unsafe.Slice((*byte)(unsafe.Pointer(&slice[0])), count*8)
	if _, err := io.ReadFull(br.r, byteSlice); err != nil {
		return nil, err
	}
	return slice, nil
}

// writeHeader writes the file header.
func writeHeader(w io.Writer, header *FileHeader) error {
	header.Magic = MagicNumber
	header.Version = Version
	return binary.Write(w, binary.LittleEndian, header)
}

// readHeader reads and validates the file header.
func readHeader(r io.Reader) (*FileHeader, error) {
	var header FileHeader
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return nil, err
	}
	if header.Magic != MagicNumber {
		return nil, fmt.Errorf("%w: got 0x%08x", ErrInvalidMagic, header.Magic)
	}
	if header.Version != Version {
		return nil, fmt.Errorf("%w: got 0x%08x", ErrInvalidVersion, header.Version)
	}
	if Codec(header.CodecID) > CodecLZ4 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidCodec, header.CodecID)
	}
	return &header, nil
}

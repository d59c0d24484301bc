package parser

import (
	"bytes"
	"compress/flate"
	"compress/zlib"
	"encoding/binary"
	"hash/crc32"
	"io"
)

var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

// normalizePNG reverses the CgBI optimization applied to PNGs inside iOS
// archives: the CgBI chunk is dropped, the IDAT payload (raw deflate, no
// zlib header) is inflated, the first and third byte of every pixel are
// swapped back to RGBA order, and the result is recompressed with a
// standard zlib stream. Returns nil when the input is not a PNG or is
// already standard, so callers keep the original bytes.
func normalizePNG(data []byte) []byte {
	if len(data) < 8 || !bytes.Equal(data[:8], pngHeader) {
		return nil
	}

	var out bytes.Buffer
	out.Write(data[:8])

	var (
		idat          []byte
		width, height int
	)

	pos := 8
	for pos+12 <= len(data) {
		length := int(binary.BigEndian.Uint32(data[pos : pos+4]))
		if pos+12+length > len(data) {
			return nil
		}
		chunkType := string(data[pos+4 : pos+8])
		chunkData := data[pos+8 : pos+8+length]
		chunkCRC := binary.BigEndian.Uint32(data[pos+8+length : pos+12+length])
		pos += 12 + length

		skip := false

		switch chunkType {
		case "IHDR":
			if length >= 8 {
				width = int(binary.BigEndian.Uint32(chunkData[0:4]))
				height = int(binary.BigEndian.Uint32(chunkData[4:8]))
			}
		case "IDAT":
			// Accumulate for one-shot inflation at IEND.
			idat = append(idat, chunkData...)
			skip = true
		case "CgBI":
			skip = true
		case "IEND":
			if width == 0 || height == 0 {
				return nil
			}
			bufSize := width*height*4 + height
			raw := make([]byte, bufSize)
			fr := flate.NewReader(bytes.NewReader(idat))
			if _, err := io.ReadFull(fr, raw); err != nil {
				// Standard zlib IDAT does not inflate as a raw stream:
				// the image is already normalized.
				return nil
			}

			// Each scanline keeps its filter byte; pixels go BGRA -> RGBA.
			rowLen := width*4 + 1
			fixed := make([]byte, 0, bufSize)
			for y := 0; y < height; y++ {
				row := raw[y*rowLen : (y+1)*rowLen]
				fixed = append(fixed, row[0])
				for x := 0; x < width; x++ {
					p := row[1+x*4 : 1+x*4+4]
					fixed = append(fixed, p[2], p[1], p[0], p[3])
				}
			}

			var zbuf bytes.Buffer
			zw := zlib.NewWriter(&zbuf)
			zw.Write(fixed) //nolint:errcheck // writes to bytes.Buffer cannot fail
			zw.Close()

			writeChunk(&out, "IDAT", zbuf.Bytes())
			writeChunk(&out, "IEND", nil)
			return out.Bytes()
		}

		if !skip {
			var hdr [8]byte
			binary.BigEndian.PutUint32(hdr[:4], uint32(length))
			copy(hdr[4:], chunkType)
			out.Write(hdr[:])
			out.Write(chunkData)
			var crc [4]byte
			binary.BigEndian.PutUint32(crc[:], chunkCRC)
			out.Write(crc[:])
		}
	}

	// No IEND marker: malformed container.
	return nil
}

func writeChunk(out *bytes.Buffer, chunkType string, data []byte) {
	var hdr [8]byte
	binary.BigEndian.PutUint32(hdr[:4], uint32(len(data)))
	copy(hdr[4:], chunkType)
	out.Write(hdr[:])
	out.Write(data)

	sum := crc32.Update(0, crc32.IEEETable, []byte(chunkType))
	sum = crc32.Update(sum, crc32.IEEETable, data)
	var crc [4]byte
	binary.BigEndian.PutUint32(crc[:], sum)
	out.Write(crc[:])
}

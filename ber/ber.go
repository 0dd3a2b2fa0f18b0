// Package ber converts BER-encoded ASN.1 to its canonical DER form.
//
// CMP requires DER on the wire, but some deployed clients and gateways emit
// PKIMessages with indefinite lengths, non-minimal length octets or
// constructed string encodings. Normalize rewrites such input so that a strict
// DER decoder can process it. The rewrite is bounded: nesting deeper than the
// caller's limit is rejected instead of recursing without end.
package ber

import (
	"bytes"
	"errors"
	"fmt"
)

// ASN.1 tag byte structure constants (X.690 section 8.1.2).
const (
	tagClassMask      byte = 0xC0 // bits 7-8: tag class
	tagConstructedBit byte = 0x20 // bit 6: constructed encoding flag
	tagNumMask        byte = 0x1F // bits 1-5: tag number within class
	tagLongFormMarker byte = 0x1F // all tag-number bits set indicates long-form tag
	tagMoreBytesBit   byte = 0x80 // set in long-form tag bytes when more bytes follow
)

const classUniversal byte = 0x00

// Universal ASN.1 tag numbers (X.680 table 1).
const (
	tagBoolean         byte = 0x01
	tagInteger         byte = 0x02
	tagBitString       byte = 0x03
	tagOctetString     byte = 0x04
	tagUTF8String      byte = 0x0C
	tagNumericString   byte = 0x12
	tagPrintableString byte = 0x13
	tagT61String       byte = 0x14
	tagIA5String       byte = 0x16
	tagUTCTime         byte = 0x17
	tagGeneralizedTime byte = 0x18
	tagVisibleString   byte = 0x1A
	tagGeneralString   byte = 0x1B
	tagBMPString       byte = 0x1E
)

// Length encoding constants (X.690 section 8.1.3).
const (
	lenIndefinite   byte = 0x80
	lenHighBit      byte = 0x80
	lenLongFormMask byte = 0x7F
	lenShortFormMax      = 127
	lenMaxOctets         = 4
)

const eocByte byte = 0x00

// BER permits any non-zero byte for TRUE; DER requires 0xFF.
const (
	derBoolFalse byte = 0x00
	derBoolTrue  byte = 0xFF
)

const intSignBit byte = 0x80

var (
	// ErrTruncated is returned when an element extends past the end of the input.
	ErrTruncated = errors.New("ber: truncated input")
	// ErrTooDeep is returned when constructed elements nest deeper than the limit.
	ErrTooDeep = errors.New("ber: nesting too deep")
	// ErrInvalid is returned for encodings that are not valid BER.
	ErrInvalid = errors.New("ber: invalid encoding")
)

// Normalize converts the BER element at the start of input to DER. It returns
// the DER encoding of that element and the bytes that follow it, which the
// caller decides how to treat. Constructed elements may nest at most maxDepth
// levels below the outermost element.
//
// The following BER constructs are rewritten:
//
//   - indefinite lengths, including zero-length content
//   - non-minimal length octets
//   - constructed encodings of string types
//   - BOOLEAN TRUE values other than 0xFF
//   - redundant leading zero octets in INTEGER values
//
// A zero-length element encoded with indefinite length stays present with a
// definite zero length; it is never dropped.
func Normalize(input []byte, maxDepth int) (der, rest []byte, err error) {
	if len(input) == 0 {
		return nil, nil, ErrTruncated
	}
	var buf bytes.Buffer
	n, err := normalize(input, 0, &buf, 0, maxDepth)
	if err != nil {
		return nil, nil, err
	}
	return buf.Bytes(), input[n:], nil
}

// normalize writes the DER form of the element at input[offset] to w and
// returns the number of input bytes consumed.
func normalize(input []byte, offset int, w *bytes.Buffer, depth, maxDepth int) (int, error) {
	if depth > maxDepth {
		return 0, ErrTooDeep
	}
	if offset >= len(input) {
		return 0, ErrTruncated
	}

	h, err := readHeader(input, offset)
	if err != nil {
		return 0, err
	}
	start := offset
	offset += h.size

	if !h.constructed && h.indefinite {
		return 0, fmt.Errorf("%w: primitive element with indefinite length at offset %d", ErrInvalid, start)
	}

	var (
		inner    bytes.Buffer
		consumed int
	)
	switch {
	case h.indefinite:
		pos := offset
		for {
			if pos+1 >= len(input) {
				return 0, fmt.Errorf("%w: missing end-of-contents", ErrTruncated)
			}
			if input[pos] == eocByte && input[pos+1] == eocByte {
				pos += 2
				break
			}
			n, err := normalize(input, pos, &inner, depth+1, maxDepth)
			if err != nil {
				return 0, err
			}
			pos += n
		}
		consumed = pos - start

	case h.constructed:
		if h.length > len(input)-offset {
			return 0, ErrTruncated
		}
		content := input[offset : offset+h.length]
		for pos := 0; pos < len(content); {
			n, err := normalize(content, pos, &inner, depth+1, maxDepth)
			if err != nil {
				return 0, err
			}
			pos += n
		}
		consumed = h.size + h.length

	default:
		if h.length > len(input)-offset {
			return 0, ErrTruncated
		}
		value, err := normalizePrimitive(h.class(), h.number(), input[offset:offset+h.length])
		if err != nil {
			return 0, err
		}
		writeHeader(w, h.tag, len(value))
		w.Write(value)
		return h.size + h.length, nil
	}

	// Constructed strings become primitive in DER. The children were
	// normalized first, so every chunk is already a primitive element.
	if isPrimitiveTag(h.class(), h.number()) {
		flat, err := flattenConstructed(inner.Bytes(), h.number())
		if err != nil {
			return 0, err
		}
		tag := bytes.Clone(h.tag)
		tag[0] &^= tagConstructedBit
		writeHeader(w, tag, len(flat))
		w.Write(flat)
		return consumed, nil
	}
	writeHeader(w, h.tag, inner.Len())
	w.Write(inner.Bytes())
	return consumed, nil
}

// header is the decoded identifier and length octets of one element.
type header struct {
	tag         []byte // identifier octets, including long-form tag bytes
	length      int
	size        int // total number of identifier and length octets
	indefinite  bool
	constructed bool
}

func (h header) class() byte  { return h.tag[0] & tagClassMask }
func (h header) number() byte { return h.tag[0] & tagNumMask }

// readHeader parses the identifier and length octets at input[offset].
func readHeader(input []byte, offset int) (header, error) {
	if offset >= len(input) {
		return header{}, ErrTruncated
	}
	size := 1
	if input[offset]&tagNumMask == tagLongFormMarker {
		for {
			if offset+size >= len(input) {
				return header{}, fmt.Errorf("%w: long-form tag", ErrTruncated)
			}
			b := input[offset+size]
			size++
			if b&tagMoreBytesBit == 0 {
				break
			}
		}
	}
	h := header{
		tag:         input[offset : offset+size],
		constructed: input[offset]&tagConstructedBit != 0,
	}

	if offset+size >= len(input) {
		return header{}, fmt.Errorf("%w: length octets", ErrTruncated)
	}
	lenByte := input[offset+size]
	size++

	switch {
	case lenByte == lenIndefinite:
		h.indefinite = true
	case lenByte&lenHighBit == 0:
		h.length = int(lenByte)
	default:
		numBytes := int(lenByte & lenLongFormMask)
		if numBytes > lenMaxOctets {
			return header{}, fmt.Errorf("%w: %d length octets", ErrInvalid, numBytes)
		}
		if offset+size+numBytes > len(input) {
			return header{}, fmt.Errorf("%w: long-form length", ErrTruncated)
		}
		var length uint64
		for _, b := range input[offset+size : offset+size+numBytes] {
			length = length<<8 | uint64(b)
		}
		if length > uint64(len(input)) {
			return header{}, fmt.Errorf("%w: element length %d", ErrTruncated, length)
		}
		h.length = int(length)
		size += numBytes
	}
	h.size = size
	return h, nil
}

// writeHeader writes the identifier octets and a minimal definite length.
func writeHeader(w *bytes.Buffer, tag []byte, length int) {
	w.Write(tag)
	if length <= lenShortFormMax {
		w.WriteByte(byte(length))
		return
	}
	var octets [lenMaxOctets]byte
	n := 0
	for l := length; l > 0; l >>= 8 {
		n++
	}
	for i := 0; i < n; i++ {
		octets[i] = byte(length >> (8 * (n - 1 - i)))
	}
	w.WriteByte(lenHighBit | byte(n))
	w.Write(octets[:n])
}

// isPrimitiveTag reports whether a universal tag must use the primitive
// encoding in DER.
func isPrimitiveTag(class, tagNum byte) bool {
	if class != classUniversal {
		return false
	}
	switch tagNum {
	case tagBitString,
		tagOctetString,
		tagUTF8String,
		tagNumericString,
		tagPrintableString,
		tagT61String,
		tagIA5String,
		tagUTCTime,
		tagGeneralizedTime,
		tagVisibleString,
		tagGeneralString,
		tagBMPString:
		return true
	}
	return false
}

// chunks splits normalized content into the value octets of its elements.
// Every chunk must carry the primitive form of tagNum.
func chunks(content []byte, tagNum byte) ([][]byte, error) {
	var out [][]byte
	for pos := 0; pos < len(content); {
		h, err := readHeader(content, pos)
		if err != nil {
			return nil, err
		}
		if len(h.tag) != 1 || h.tag[0] != tagNum {
			return nil, fmt.Errorf("%w: segment of a constructed string has tag 0x%02x", ErrInvalid, h.tag[0])
		}
		start := pos + h.size
		if h.length > len(content)-start {
			return nil, ErrTruncated
		}
		out = append(out, content[start:start+h.length])
		pos = start + h.length
	}
	return out, nil
}

// flattenConstructed concatenates the segments of a constructed string. BIT
// STRING segments each carry an unused-bits octet (X.690 section 8.6.4); only
// the last may be non-zero.
func flattenConstructed(content []byte, tagNum byte) ([]byte, error) {
	parts, err := chunks(content, tagNum)
	if err != nil {
		return nil, err
	}
	if tagNum != tagBitString {
		return bytes.Join(parts, nil), nil
	}
	var data bytes.Buffer
	var unused byte
	for i, p := range parts {
		if len(p) == 0 {
			return nil, fmt.Errorf("%w: BIT STRING segment missing unused-bits octet", ErrInvalid)
		}
		if i < len(parts)-1 && p[0] != 0 {
			return nil, fmt.Errorf("%w: non-final BIT STRING segment has unused bits", ErrInvalid)
		}
		unused = p[0]
		data.Write(p[1:])
	}
	return append([]byte{unused}, data.Bytes()...), nil
}

// normalizePrimitive applies the DER value rules for BOOLEAN and INTEGER.
// Other primitive values are already canonical once their length is.
func normalizePrimitive(class, tagNum byte, value []byte) ([]byte, error) {
	if class != classUniversal {
		return value, nil
	}
	switch tagNum {
	case tagBoolean:
		if len(value) != 1 {
			return nil, fmt.Errorf("%w: BOOLEAN value must be 1 byte, got %d", ErrInvalid, len(value))
		}
		if value[0] == derBoolFalse {
			return value, nil
		}
		return []byte{derBoolTrue}, nil
	case tagInteger:
		if len(value) == 0 {
			return nil, fmt.Errorf("%w: INTEGER value is empty", ErrInvalid)
		}
		i := 0
		for i < len(value)-1 && value[i] == 0x00 && value[i+1]&intSignBit == 0 {
			i++
		}
		// 0xFF followed by a byte with the sign bit set is also redundant.
		for i < len(value)-1 && value[i] == 0xFF && value[i+1]&intSignBit != 0 {
			i++
		}
		return value[i:], nil
	}
	return value, nil
}

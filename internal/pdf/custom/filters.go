package custom

import (
	"bytes"
	"compress/flate"
	"compress/zlib"
	"encoding/ascii85"
	"fmt"
	"io"

	"github.com/hhrutter/lzw"
)

// FilterDecoder decodes one stream filter
type FilterDecoder interface {
	Decode(data []byte, params *Dictionary) ([]byte, error)
	Name() string
}

// FilterRegistry holds the supported decoders. Image-only filters are not
// listed; streams using them are never decoded by the form engine.
var FilterRegistry = map[string]FilterDecoder{
	"FlateDecode":     &FlateDecoder{},
	"ASCIIHexDecode":  &ASCIIHexDecoder{},
	"ASCII85Decode":   &ASCII85Decoder{},
	"LZWDecode":       &LZWDecoder{},
	"RunLengthDecode": &RunLengthDecoder{},
}

// filterAliases maps abbreviated inline names to their full form
var filterAliases = map[string]string{
	"Fl":  "FlateDecode",
	"AHx": "ASCIIHexDecode",
	"A85": "ASCII85Decode",
	"LZW": "LZWDecode",
	"RL":  "RunLengthDecode",
}

// GetFilterDecoder returns a filter decoder by name
func GetFilterDecoder(name string) FilterDecoder {
	if full, ok := filterAliases[name]; ok {
		name = full
	}
	return FilterRegistry[name]
}

// DecodeStream applies the stream's filters in order. resolve follows
// indirect DecodeParms entries and may be nil.
func DecodeStream(stream *Stream, resolve func(PDFObject) PDFObject) ([]byte, error) {
	data := stream.Data
	filters := stream.GetFilter()

	if len(filters) == 0 {
		return data, nil
	}
	if resolve == nil {
		resolve = func(o PDFObject) PDFObject { return o }
	}

	for i, filterName := range filters {
		decoder := GetFilterDecoder(filterName)
		if decoder == nil {
			return nil, fmt.Errorf("unsupported filter: %s", filterName)
		}

		var params *Dictionary
		switch dp := resolve(stream.Dict.Get("DecodeParms")).(type) {
		case *Array:
			if d, ok := resolve(dp.Get(i)).(*Dictionary); ok {
				params = d
			}
		case *Dictionary:
			if i == 0 {
				params = dp
			}
		}

		var err error
		data, err = decoder.Decode(data, params)
		if err != nil {
			return nil, fmt.Errorf("failed to decode with %s: %w", filterName, err)
		}
	}

	return data, nil
}

// FlateDecoder implements zlib decompression
type FlateDecoder struct{}

func (f *FlateDecoder) Name() string {
	return "FlateDecode"
}

func (f *FlateDecoder) Decode(data []byte, params *Dictionary) ([]byte, error) {
	if len(data) == 0 {
		return data, nil
	}

	decoded, err := inflate(data)
	if err != nil {
		return nil, fmt.Errorf("flate decode error: %w", err)
	}

	if params != nil && params.GetInt("Predictor") > 1 {
		decoded, err = applyPredictor(decoded, params)
		if err != nil {
			return nil, fmt.Errorf("predictor error: %w", err)
		}
	}

	return decoded, nil
}

// inflate reads a zlib stream. Some producers write raw deflate data
// without the zlib header, so that is tried when the header is invalid.
// A truncated stream keeps whatever was decoded before the error.
func inflate(data []byte) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		fr := flate.NewReader(bytes.NewReader(data))
		defer fr.Close()
		return readLenient(fr)
	}
	defer zr.Close()
	return readLenient(zr)
}

func readLenient(r io.Reader) ([]byte, error) {
	out, err := io.ReadAll(r)
	if err != nil {
		if len(out) > 0 && (err == io.ErrUnexpectedEOF || err == zlib.ErrChecksum) {
			return out, nil
		}
		return nil, err
	}
	return out, nil
}

// Deflate compresses data for a FlateDecode stream
func Deflate(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func applyPredictor(data []byte, params *Dictionary) ([]byte, error) {
	predictor := params.GetInt("Predictor")
	columns := int(params.GetInt("Columns"))
	bitsPerComponent := int(params.GetInt("BitsPerComponent"))
	colors := int(params.GetInt("Colors"))

	if columns == 0 {
		columns = 1
	}
	if bitsPerComponent == 0 {
		bitsPerComponent = 8
	}
	if colors == 0 {
		colors = 1
	}

	switch {
	case predictor == 2:
		return applyTIFFPredictor(data, columns, bitsPerComponent, colors)
	case predictor >= 10 && predictor <= 15:
		return applyPNGPredictor(data, columns, bitsPerComponent, colors)
	default:
		return data, nil
	}
}

func applyTIFFPredictor(data []byte, columns, bitsPerComponent, colors int) ([]byte, error) {
	if bitsPerComponent != 8 {
		return data, fmt.Errorf("TIFF predictor only supports 8 bits per component")
	}

	rowSize := columns * colors
	if len(data)%rowSize != 0 {
		return data, fmt.Errorf("data length not multiple of row size")
	}

	result := make([]byte, len(data))
	copy(result, data)

	for rowStart := 0; rowStart < len(result); rowStart += rowSize {
		for i := colors; i < rowSize; i++ {
			result[rowStart+i] += result[rowStart+i-colors]
		}
	}
	return result, nil
}

func applyPNGPredictor(data []byte, columns, bitsPerComponent, colors int) ([]byte, error) {
	bytesPerPixel := (bitsPerComponent*colors + 7) / 8
	rowSize := (columns*bitsPerComponent*colors + 7) / 8
	totalRowSize := rowSize + 1

	if len(data)%totalRowSize != 0 {
		return data, fmt.Errorf("data length not multiple of row size")
	}

	numRows := len(data) / totalRowSize
	result := make([]byte, numRows*rowSize)
	prev := make([]byte, rowSize)

	for row := 0; row < numRows; row++ {
		src := data[row*totalRowSize+1 : (row+1)*totalRowSize]
		cur := result[row*rowSize : (row+1)*rowSize]
		copy(cur, src)

		switch data[row*totalRowSize] {
		case 0: // None
		case 1: // Sub
			for i := bytesPerPixel; i < rowSize; i++ {
				cur[i] += cur[i-bytesPerPixel]
			}
		case 2: // Up
			for i := 0; i < rowSize; i++ {
				cur[i] += prev[i]
			}
		case 3: // Average
			for i := 0; i < rowSize; i++ {
				var left int
				if i >= bytesPerPixel {
					left = int(cur[i-bytesPerPixel])
				}
				cur[i] += byte((left + int(prev[i])) / 2)
			}
		case 4: // Paeth
			for i := 0; i < rowSize; i++ {
				var left, upLeft byte
				if i >= bytesPerPixel {
					left = cur[i-bytesPerPixel]
					upLeft = prev[i-bytesPerPixel]
				}
				cur[i] += paethPredictor(left, prev[i], upLeft)
			}
		default:
			return nil, fmt.Errorf("unknown PNG predictor: %d", data[row*totalRowSize])
		}
		prev = cur
	}

	return result, nil
}

func paethPredictor(a, b, c byte) byte {
	p := int(a) + int(b) - int(c)
	pa := abs(p - int(a))
	pb := abs(p - int(b))
	pc := abs(p - int(c))

	if pa <= pb && pa <= pc {
		return a
	} else if pb <= pc {
		return b
	}
	return c
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// ASCIIHexDecoder implements ASCII hex decoding
type ASCIIHexDecoder struct{}

func (a *ASCIIHexDecoder) Name() string {
	return "ASCIIHexDecode"
}

func (a *ASCIIHexDecoder) Decode(data []byte, params *Dictionary) ([]byte, error) {
	var out []byte
	var hi byte
	half := false

	for _, b := range data {
		if b == '>' {
			break
		}
		if IsWhitespace(b) {
			continue
		}
		v, ok := hexValue(b)
		if !ok {
			return nil, fmt.Errorf("ASCII hex decode error: invalid byte %q", b)
		}
		if half {
			out = append(out, hi<<4|v)
		} else {
			hi = v
		}
		half = !half
	}
	if half {
		out = append(out, hi<<4)
	}
	return out, nil
}

// ASCII85Decoder implements ASCII85 decoding
type ASCII85Decoder struct{}

func (a *ASCII85Decoder) Name() string {
	return "ASCII85Decode"
}

func (a *ASCII85Decoder) Decode(data []byte, params *Dictionary) ([]byte, error) {
	data = bytes.TrimPrefix(bytes.TrimLeft(data, " \t\r\n\f"), []byte("<~"))
	if end := bytes.Index(data, []byte("~>")); end >= 0 {
		data = data[:end]
	}

	decoded, err := io.ReadAll(ascii85.NewDecoder(bytes.NewReader(data)))
	if err != nil {
		return nil, fmt.Errorf("ASCII85 decode error: %w", err)
	}
	return decoded, nil
}

// LZWDecoder implements LZW decompression
type LZWDecoder struct{}

func (l *LZWDecoder) Name() string {
	return "LZWDecode"
}

func (l *LZWDecoder) Decode(data []byte, params *Dictionary) ([]byte, error) {
	if len(data) == 0 {
		return data, nil
	}

	// EarlyChange defaults to 1
	earlyChange := params == nil || !params.Has("EarlyChange") || params.GetInt("EarlyChange") != 0
	reader := lzw.NewReader(bytes.NewReader(data), earlyChange)
	defer reader.Close()

	decoded, err := readLenient(reader)
	if err != nil {
		return nil, fmt.Errorf("LZW decode error: %w", err)
	}

	if params != nil && params.GetInt("Predictor") > 1 {
		return applyPredictor(decoded, params)
	}
	return decoded, nil
}

// RunLengthDecoder implements run-length decompression
type RunLengthDecoder struct{}

func (r *RunLengthDecoder) Name() string {
	return "RunLengthDecode"
}

func (r *RunLengthDecoder) Decode(data []byte, params *Dictionary) ([]byte, error) {
	var result []byte

	for i := 0; i < len(data); {
		length := int(data[i])
		i++

		switch {
		case length == 128:
			return result, nil
		case length < 128:
			count := length + 1
			if i+count > len(data) {
				return nil, fmt.Errorf("insufficient data for literal run")
			}
			result = append(result, data[i:i+count]...)
			i += count
		default:
			if i >= len(data) {
				return nil, fmt.Errorf("insufficient data for repeat run")
			}
			for j := 0; j < 257-length; j++ {
				result = append(result, data[i])
			}
			i++
		}
	}

	return result, nil
}

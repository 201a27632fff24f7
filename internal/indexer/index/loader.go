package index

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"gopkg.in/yaml.v3"
)

// Format is the serialisation of an index or query file.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatCBOR Format = "cbor"
)

// Compression is an optional outer encoding, detected from the file suffix.
type Compression string

const (
	CompressionNone Compression = ""
	CompressionGzip Compression = "gz"
	CompressionZstd Compression = "zst"
	CompressionLZ4  Compression = "lz4"
)

// DetectFormat derives the serialisation and compression from a file name,
// e.g. "cacm.json.zst" -> (json, zst).
func DetectFormat(path string) (Format, Compression, error) {
	name := strings.ToLower(filepath.Base(path))
	compression := CompressionNone
	switch ext := filepath.Ext(name); ext {
	case ".gz":
		compression = CompressionGzip
	case ".zst", ".zstd":
		compression = CompressionZstd
	case ".lz4":
		compression = CompressionLZ4
	}
	if compression != CompressionNone {
		name = strings.TrimSuffix(name, filepath.Ext(name))
	}
	switch filepath.Ext(name) {
	case ".json":
		return FormatJSON, compression, nil
	case ".yaml", ".yml":
		return FormatYAML, compression, nil
	case ".cbor":
		return FormatCBOR, compression, nil
	}
	return "", compression, fmt.Errorf("unrecognised file format for %s", path)
}

// Load reads an inverted index file.
func Load(path string) (Inverted, error) {
	var idx Inverted
	if err := loadFile(path, &idx); err != nil {
		return nil, fmt.Errorf("loading index: %w", err)
	}
	if idx == nil {
		idx = make(Inverted)
	}
	return idx, nil
}

// LoadQueries reads a file mapping query id -> term counts.
func LoadQueries(path string) (map[int]Query, error) {
	var queries map[int]Query
	if err := loadFile(path, &queries); err != nil {
		return nil, fmt.Errorf("loading queries: %w", err)
	}
	if queries == nil {
		queries = make(map[int]Query)
	}
	return queries, nil
}

func loadFile(path string, v any) error {
	format, compression, err := DetectFormat(path)
	if err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	r, err := Decompress(f, compression)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	defer r.Close()

	if err := Decode(r, format, v); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}
	return nil
}

// Decompress wraps r with the reader for the given compression.
func Decompress(r io.Reader, compression Compression) (io.ReadCloser, error) {
	switch compression {
	case CompressionNone:
		return io.NopCloser(r), nil
	case CompressionGzip:
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("opening gzip stream: %w", err)
		}
		return gz, nil
	case CompressionZstd:
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("opening zstd stream: %w", err)
		}
		return dec.IOReadCloser(), nil
	case CompressionLZ4:
		return io.NopCloser(lz4.NewReader(r)), nil
	default:
		return nil, fmt.Errorf("unsupported compression %q", compression)
	}
}

// Decode unmarshals a single document of the given format from r into v.
func Decode(r io.Reader, format Format, v any) error {
	switch format {
	case FormatJSON:
		return json.NewDecoder(r).Decode(v)
	case FormatYAML:
		return yaml.NewDecoder(r).Decode(v)
	case FormatCBOR:
		return cbor.NewDecoder(r).Decode(v)
	default:
		return fmt.Errorf("unsupported format %q", format)
	}
}

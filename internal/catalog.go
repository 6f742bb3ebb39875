package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/natefinch/atomic"
	"go.uber.org/zap"
)

// MediaRecord is one catalog entry. Name is the catalog key; Path is
// informational only.
type MediaRecord struct {
	Name   string  `json:"-"`
	Path   string  `json:"path"`
	Hashes HashSet `json:"hashes"`
}

// Catalog maps file names to records and keeps insertion order. A catalog
// built by Builder has unique names. A decoded catalog keeps any repeated
// key so the matching engine can reject it.
type Catalog struct {
	records []MediaRecord
	index   map[string]int
}

func NewCatalog() *Catalog {
	return &Catalog{index: make(map[string]int)}
}

// Add inserts rec unless its name is already present. On collision the
// existing record is returned and nothing changes.
func (c *Catalog) Add(rec MediaRecord) (MediaRecord, bool) {
	if i, ok := c.index[rec.Name]; ok {
		return c.records[i], false
	}
	c.index[rec.Name] = len(c.records)
	c.records = append(c.records, rec)
	return rec, true
}

// appendRaw keeps duplicates; lookups resolve to the first occurrence.
func (c *Catalog) appendRaw(rec MediaRecord) {
	if _, ok := c.index[rec.Name]; !ok {
		c.index[rec.Name] = len(c.records)
	}
	c.records = append(c.records, rec)
}

func (c *Catalog) Get(name string) (MediaRecord, bool) {
	i, ok := c.index[name]
	if !ok {
		return MediaRecord{}, false
	}
	return c.records[i], true
}

// Records returns the entries in insertion order.
func (c *Catalog) Records() []MediaRecord {
	return c.records
}

func (c *Catalog) Len() int {
	return len(c.records)
}

// WriteTo encodes the catalog document: one key per record, in order,
// indented by four spaces.
func (c *Catalog) WriteTo(w io.Writer) (int64, error) {
	keys := make([]string, len(c.records))
	values := make([]any, len(c.records))
	for i, rec := range c.records {
		keys[i] = rec.Name
		values[i] = rec
	}
	return writeOrderedJSON(w, keys, values)
}

// WriteCatalog atomically replaces path with the catalog document.
func WriteCatalog(path string, c *Catalog) error {
	return writeDocument(path, c)
}

func writeDocument(path string, doc io.WriterTo) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	var buf bytes.Buffer
	if _, err := doc.WriteTo(&buf); err != nil {
		return err
	}
	if err := atomic.WriteFile(path, &buf); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// writeOrderedJSON writes a JSON object whose keys keep the given order.
// Non-ASCII text and HTML characters are written unescaped.
func writeOrderedJSON(w io.Writer, keys []string, values []any) (int64, error) {
	var buf bytes.Buffer
	if len(keys) == 0 {
		buf.WriteString("{}")
		n, err := w.Write(buf.Bytes())
		return int64(n), err
	}

	buf.WriteString("{\n")
	for i, key := range keys {
		k, err := marshalUnescaped(key, "")
		if err != nil {
			return 0, err
		}
		v, err := marshalUnescaped(values[i], "    ")
		if err != nil {
			return 0, fmt.Errorf("failed to encode %q: %w", key, err)
		}
		buf.WriteString("    ")
		buf.Write(k)
		buf.WriteString(": ")
		buf.Write(v)
		if i < len(keys)-1 {
			buf.WriteByte(',')
		}
		buf.WriteByte('\n')
	}
	buf.WriteString("}")
	n, err := w.Write(buf.Bytes())
	return int64(n), err
}

func marshalUnescaped(v any, prefix string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent(prefix, "    ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// decodeObject walks a top-level JSON object key by key without collapsing
// repeated keys. fn decodes each value from dec.
func decodeObject(r io.Reader, source string, fn func(key string, dec *json.Decoder) error) error {
	dec := json.NewDecoder(r)
	tok, err := dec.Token()
	if err != nil {
		return newMalformedMetadataError(source, fmt.Errorf("invalid document: %w", err))
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return newMalformedMetadataError(source, fmt.Errorf("document must be a JSON object"))
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return newMalformedMetadataError(source, fmt.Errorf("invalid document: %w", err))
		}
		key, ok := tok.(string)
		if !ok {
			return newMalformedMetadataError(source, fmt.Errorf("unexpected token %v", tok))
		}
		if err := fn(key, dec); err != nil {
			return err
		}
	}
	if _, err := dec.Token(); err != nil {
		return newMalformedMetadataError(source, fmt.Errorf("invalid document: %w", err))
	}
	if tok, err := dec.Token(); err != io.EOF {
		if err == nil {
			err = fmt.Errorf("unexpected %v", tok)
		}
		return newMalformedMetadataError(source, fmt.Errorf("trailing data after document: %w", err))
	}
	return nil
}

type catalogEntry struct {
	Path   string   `json:"path"`
	Hashes *HashSet `json:"hashes"`
}

// DecodeCatalog reads a catalog document and validates every entry.
func DecodeCatalog(r io.Reader, source string) (*Catalog, error) {
	c := NewCatalog()
	err := decodeObject(r, source, func(name string, dec *json.Decoder) error {
		var entry catalogEntry
		if err := dec.Decode(&entry); err != nil {
			return newMalformedMetadataError(source, fmt.Errorf("entry %q: %w", name, err))
		}
		if entry.Path == "" {
			return newMalformedMetadataError(source, fmt.Errorf("entry %q has no path", name))
		}
		if entry.Hashes == nil {
			return newMalformedMetadataError(source, fmt.Errorf("entry %q has no hashes", name))
		}
		if missing := entry.Hashes.Missing(); len(missing) > 0 {
			return newMalformedMetadataError(source, fmt.Errorf("entry %q is missing hashes %v", name, missing))
		}
		c.appendRaw(MediaRecord{Name: name, Path: entry.Path, Hashes: *entry.Hashes})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

func openDocument(path string) (*os.File, error) {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return nil, newNotFoundError(path, fmt.Errorf("document does not exist or is not a file: %s", path))
	}
	return os.Open(path)
}

// ReadCatalog loads the catalog document at path.
func ReadCatalog(path string) (*Catalog, error) {
	f, err := openDocument(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return DecodeCatalog(f, path)
}

// PathEntry is the part shared by catalog and missing-report entries.
type PathEntry struct {
	Name string
	Path string
}

// ReadPathIndex loads either a catalog or a missing report and returns the
// name and path of each entry in document order.
func ReadPathIndex(path string) ([]PathEntry, error) {
	f, err := openDocument(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var entries []PathEntry
	err = decodeObject(f, path, func(name string, dec *json.Decoder) error {
		var entry struct {
			Path string `json:"path"`
		}
		if err := dec.Decode(&entry); err != nil {
			return newMalformedMetadataError(path, fmt.Errorf("entry %q: %w", name, err))
		}
		if entry.Path == "" {
			return newMalformedMetadataError(path, fmt.Errorf("entry %q has no path", name))
		}
		entries = append(entries, PathEntry{Name: name, Path: entry.Path})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Builder walks a media tree and fingerprints every eligible image.
type Builder struct {
	Config *Config
	Logger *zap.Logger
	// Hash fingerprints one file; defaults to HashFile.
	Hash func(path string) (HashSet, error)
}

func NewBuilder(cfg *Config, logger *zap.Logger) *Builder {
	return &Builder{Config: cfg, Logger: orNop(logger), Hash: HashFile}
}

// Build checks the extension allow-list, then walks root in lexical order.
// With the fail policy a decode error aborts the build and no catalog is
// returned.
func (b *Builder) Build(ctx context.Context, root string) (*Catalog, error) {
	log := orNop(b.Logger)
	hash := b.Hash
	if hash == nil {
		hash = HashFile
	}

	if _, err := CheckExtensions(root, b.Config); err != nil {
		return nil, err
	}

	catalog := NewCatalog()
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		name := d.Name()

		switch {
		case inTrash(path, b.Config.TrashFolder):
			log.Info("Skipping file in trash folder", zap.String("file", path), zap.String("folder", b.Config.TrashFolder))
			return nil
		case b.Config.EditedMarker != "" && strings.Contains(name, b.Config.EditedMarker):
			log.Info("Skipping edited copy", zap.String("file", name), zap.String("marker", b.Config.EditedMarker))
			return nil
		case b.Config.KindOf(name) != KindImage:
			log.Info("Skipping non-image file", zap.String("file", name))
			return nil
		}

		if existing, ok := catalog.Get(name); ok {
			log.Warn("Duplicate file name, keeping first",
				zap.String("file", name), zap.String("kept", existing.Path), zap.String("dropped", path))
			return nil
		}

		hashes, err := hash(path)
		if err != nil {
			if b.Config.DecodeErrorPolicy == DecodeErrorSkip {
				log.Error("Skipping undecodable image", zap.String("file", path), zap.Error(err))
				return nil
			}
			return err
		}
		catalog.Add(MediaRecord{Name: name, Path: path, Hashes: hashes})
		log.Debug("Fingerprinted", zap.String("file", path))
		return nil
	})
	if err != nil {
		var procErr *ProcessError
		if errors.As(err, &procErr) || errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, fmt.Errorf("error scanning %s: %w", root, err)
	}

	log.Info("Catalog built", zap.String("root", root), zap.Int("records", catalog.Len()))
	return catalog, nil
}

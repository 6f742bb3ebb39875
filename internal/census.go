package internal

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
)

// ExtensionCensus counts the regular files under a root by extension.
type ExtensionCensus struct {
	Root       string           `json:"root"`
	TotalFiles int              `json:"total_files"`
	TotalSize  int64            `json:"total_size_bytes"`
	Extensions map[string]int   `json:"extensions"`
	Sizes      map[string]int64 `json:"sizes"`
}

// TakeCensus walks root and records the extension of every regular file.
// Nothing is skipped, including the trash folder.
func TakeCensus(root string) (*ExtensionCensus, error) {
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return nil, newNotFoundError(root, fmt.Errorf("media folder does not exist or is not a directory: %s", root))
	}

	census := &ExtensionCensus{
		Root:       root,
		Extensions: make(map[string]int),
		Sizes:      make(map[string]int64),
	}
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		ext := extensionOf(d.Name())
		census.TotalFiles++
		census.TotalSize += fi.Size()
		census.Extensions[ext]++
		census.Sizes[ext] += fi.Size()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("error scanning %s: %w", root, err)
	}
	return census, nil
}

// Unexpected returns the extensions not in allowed, sorted.
func (c *ExtensionCensus) Unexpected(allowed map[string]bool) []string {
	var out []string
	for ext := range c.Extensions {
		if !allowed[ext] {
			out = append(out, ext)
		}
	}
	sort.Strings(out)
	return out
}

// CheckExtensions is the pre-flight run before any hashing: every extension
// under root must be part of the configured allow-list.
func CheckExtensions(root string, cfg *Config) (*ExtensionCensus, error) {
	census, err := TakeCensus(root)
	if err != nil {
		return nil, err
	}
	allowed := cfg.AllowedExtensions()
	unexpected := census.Unexpected(allowed)
	if len(unexpected) == 0 {
		return census, nil
	}

	expected := make([]string, 0, len(allowed))
	for ext := range allowed {
		expected = append(expected, ext)
	}
	sort.Strings(expected)

	procErr := newConfigurationError(root, fmt.Errorf("unexpected file extensions %s, expected %s",
		quoteList(unexpected), quoteList(expected)))
	procErr.Context["unexpected"] = strings.Join(unexpected, ",")
	procErr.Context["expected"] = strings.Join(expected, ",")
	return census, procErr
}

func quoteList(items []string) string {
	quoted := make([]string, len(items))
	for i, s := range items {
		quoted[i] = fmt.Sprintf("%q", s)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

// Display prints the census grouped by media kind.
func (c *ExtensionCensus) Display(w io.Writer, cfg *Config) {
	fmt.Fprintf(w, "Folder: %s\n", c.Root)
	fmt.Fprintf(w, "Files:  %d (%s)\n\n", c.TotalFiles, humanize.Bytes(uint64(c.TotalSize)))

	groups := map[MediaKind][]string{}
	for ext := range c.Extensions {
		kind := cfg.KindOf("f" + ext)
		groups[kind] = append(groups[kind], ext)
	}

	for _, kind := range []MediaKind{KindImage, KindVideo, KindOther, KindUnknown} {
		exts := groups[kind]
		if len(exts) == 0 {
			continue
		}
		sort.Strings(exts)
		label := string(kind)
		if kind == KindUnknown {
			label = "unexpected"
		}
		fmt.Fprintf(w, "%s:\n", label)
		for _, ext := range exts {
			name := ext
			if name == "" {
				name = "(none)"
			}
			fmt.Fprintf(w, "  %-8s %6d  %s\n", name, c.Extensions[ext], humanize.Bytes(uint64(c.Sizes[ext])))
		}
	}
}

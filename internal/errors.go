package internal

import (
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
)

// ErrorCategory represents the type of error encountered
type ErrorCategory string

const (
	ErrorCategoryConfiguration     ErrorCategory = "configuration"      // Unexpected extensions, invalid settings
	ErrorCategoryAmbiguity         ErrorCategory = "ambiguity"          // Multiple sidecars, duplicate names
	ErrorCategoryMalformedMetadata ErrorCategory = "malformed_metadata" // Bad sidecar, bad catalog, unparseable time
	ErrorCategoryCodec             ErrorCategory = "codec"              // EXIF encode/decode or remux failure
	ErrorCategoryNotFound          ErrorCategory = "not_found"          // Missing catalog or directory
	ErrorCategoryCopy              ErrorCategory = "copy"               // Output copy could not be written or verified
	ErrorCategoryUnknown           ErrorCategory = "unknown_error"
)

// ErrorSeverity indicates how critical the error is
type ErrorSeverity string

const (
	ErrorSeverityCritical ErrorSeverity = "critical" // Abort the run before or during work
	ErrorSeverityError    ErrorSeverity = "error"    // Abort the item
	ErrorSeverityWarning  ErrorSeverity = "warning"  // Recovered, batch continues
)

var (
	ErrConfiguration     = errors.New("configuration error")
	ErrAmbiguity         = errors.New("ambiguous input")
	ErrMalformedMetadata = errors.New("malformed metadata")
	ErrCodec             = errors.New("codec failure")
	ErrNotFound          = errors.New("not found")
	ErrCopy              = errors.New("copy failed")
)

var categorySentinels = map[ErrorCategory]error{
	ErrorCategoryConfiguration:     ErrConfiguration,
	ErrorCategoryAmbiguity:         ErrAmbiguity,
	ErrorCategoryMalformedMetadata: ErrMalformedMetadata,
	ErrorCategoryCodec:             ErrCodec,
	ErrorCategoryNotFound:          ErrNotFound,
	ErrorCategoryCopy:              ErrCopy,
}

var categorySeverity = map[ErrorCategory]ErrorSeverity{
	ErrorCategoryConfiguration:     ErrorSeverityCritical,
	ErrorCategoryAmbiguity:         ErrorSeverityError,
	ErrorCategoryMalformedMetadata: ErrorSeverityError,
	ErrorCategoryCodec:             ErrorSeverityWarning,
	ErrorCategoryNotFound:          ErrorSeverityCritical,
	ErrorCategoryCopy:              ErrorSeverityError,
}

var categorySuggestion = map[ErrorCategory]string{
	ErrorCategoryConfiguration:     "Fix the configuration or remove the unexpected files, then rerun",
	ErrorCategoryAmbiguity:         "Resolve the duplicate inputs by hand before rerunning",
	ErrorCategoryMalformedMetadata: "Inspect the metadata document or embedded value manually",
	ErrorCategoryCodec:             "File left untouched - check that exiftool/ffmpeg can handle it",
	ErrorCategoryNotFound:          "Check the path passed on the command line",
	ErrorCategoryCopy:              "Check free space and permissions of the output folder",
}

// ProcessError represents a categorized error during file processing
type ProcessError struct {
	FilePath    string
	Category    ErrorCategory
	Severity    ErrorSeverity
	OriginalErr error
	Context     map[string]string // Conflicting values, offending extensions, ...
	Suggestion  string
}

func (e *ProcessError) Error() string {
	return fmt.Sprintf("[%s/%s] %s: %v", e.Severity, e.Category, e.FilePath, e.OriginalErr)
}

func (e *ProcessError) Unwrap() error {
	return e.OriginalErr
}

// Is matches the category sentinel, so errors.Is(err, ErrCodec) holds for
// any codec ProcessError in the chain.
func (e *ProcessError) Is(target error) bool {
	return categorySentinels[e.Category] == target
}

func newProcessError(category ErrorCategory, path string, err error) *ProcessError {
	return &ProcessError{
		FilePath:    path,
		Category:    category,
		Severity:    categorySeverity[category],
		OriginalErr: err,
		Context:     make(map[string]string),
		Suggestion:  categorySuggestion[category],
	}
}

func newConfigurationError(path string, err error) *ProcessError {
	return newProcessError(ErrorCategoryConfiguration, path, err)
}

func newAmbiguityError(path string, err error) *ProcessError {
	return newProcessError(ErrorCategoryAmbiguity, path, err)
}

func newMalformedMetadataError(path string, err error) *ProcessError {
	return newProcessError(ErrorCategoryMalformedMetadata, path, err)
}

func newCodecError(path string, err error) *ProcessError {
	return newProcessError(ErrorCategoryCodec, path, err)
}

func newNotFoundError(path string, err error) *ProcessError {
	return newProcessError(ErrorCategoryNotFound, path, err)
}

func newCopyError(path string, err error) *ProcessError {
	return newProcessError(ErrorCategoryCopy, path, err)
}

// CategorizeError returns err as a ProcessError. Errors that already carry a
// category keep it; anything else is classified by the sentinels in its
// chain and is unknown otherwise.
func CategorizeError(filePath string, err error) *ProcessError {
	if err == nil {
		return nil
	}

	var procErr *ProcessError
	if errors.As(err, &procErr) {
		return procErr
	}

	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, fs.ErrNotExist):
		return newNotFoundError(filePath, err)
	case errors.Is(err, ErrCodec):
		return newCodecError(filePath, err)
	case errors.Is(err, ErrCopy):
		return newCopyError(filePath, err)
	case errors.Is(err, ErrMalformedMetadata):
		return newMalformedMetadataError(filePath, err)
	case errors.Is(err, ErrAmbiguity):
		return newAmbiguityError(filePath, err)
	case errors.Is(err, ErrConfiguration):
		return newConfigurationError(filePath, err)
	}

	procErr = newProcessError(ErrorCategoryUnknown, filePath, err)
	procErr.Severity = ErrorSeverityError
	procErr.Suggestion = "Unexpected error - check logs for details"
	return procErr
}

// ErrorStats tracks error statistics during a batch
type ErrorStats struct {
	Total      int
	Critical   int
	Errors     int
	Warnings   int
	ByCategory map[ErrorCategory]int
	LastErrors []*ProcessError // Last 5 errors for quick diagnosis
}

func NewErrorStats() *ErrorStats {
	return &ErrorStats{
		ByCategory: make(map[ErrorCategory]int),
		LastErrors: make([]*ProcessError, 0, 5),
	}
}

func (s *ErrorStats) Add(err *ProcessError) {
	s.Total++
	s.ByCategory[err.Category]++

	switch err.Severity {
	case ErrorSeverityCritical:
		s.Critical++
	case ErrorSeverityError:
		s.Errors++
	case ErrorSeverityWarning:
		s.Warnings++
	}

	if len(s.LastErrors) >= 5 {
		s.LastErrors = s.LastErrors[1:]
	}
	s.LastErrors = append(s.LastErrors, err)
}

// ShouldAbort returns true once any error above warning severity has been
// recorded. Only codec failures are warnings.
func (s *ErrorStats) ShouldAbort() (bool, string) {
	if s.Critical > 0 {
		return true, "Critical error detected - aborting before touching more files"
	}
	if s.Errors > 0 {
		return true, "Ambiguous or malformed input detected - aborting so it can be reviewed"
	}
	return false, ""
}

// GenerateReport creates a human-readable error report
func (s *ErrorStats) GenerateReport() string {
	var report strings.Builder

	report.WriteString(fmt.Sprintf("\nRun encountered %d errors:\n\n", s.Total))

	if s.Critical > 0 {
		report.WriteString(fmt.Sprintf("  Critical: %d (run aborted)\n", s.Critical))
	}
	if s.Errors > 0 {
		report.WriteString(fmt.Sprintf("  Errors:   %d (item aborted)\n", s.Errors))
	}
	if s.Warnings > 0 {
		report.WriteString(fmt.Sprintf("  Warnings: %d (file left untouched)\n", s.Warnings))
	}

	report.WriteString("\nError categories:\n")
	categories := make([]string, 0, len(s.ByCategory))
	for cat := range s.ByCategory {
		categories = append(categories, string(cat))
	}
	sort.Strings(categories)
	for _, cat := range categories {
		report.WriteString(fmt.Sprintf("  - %s: %d\n", cat, s.ByCategory[ErrorCategory(cat)]))
	}

	report.WriteString("\nRecent errors:\n")
	for i, err := range s.LastErrors {
		report.WriteString(fmt.Sprintf("\n%d. %s\n", i+1, err.FilePath))
		report.WriteString(fmt.Sprintf("   Category: %s | Severity: %s\n", err.Category, err.Severity))
		report.WriteString(fmt.Sprintf("   Error: %v\n", err.OriginalErr))
		if err.Suggestion != "" {
			report.WriteString(fmt.Sprintf("   Suggestion: %s\n", err.Suggestion))
		}
	}

	report.WriteString("\n")
	report.WriteString(s.generateSuggestions())

	return report.String()
}

func (s *ErrorStats) generateSuggestions() string {
	var suggestions strings.Builder
	suggestions.WriteString("Suggested next steps:\n")

	if s.ByCategory[ErrorCategoryCodec] > 0 {
		suggestions.WriteString("  - Verify exiftool and ffmpeg are installed and on PATH\n")
	}
	if s.ByCategory[ErrorCategoryAmbiguity] > 0 {
		suggestions.WriteString("  - Remove duplicate sidecars or duplicate names before rerunning\n")
	}
	if s.ByCategory[ErrorCategoryCopy] > 0 {
		suggestions.WriteString("  - Make sure the output folder exists and is writable\n")
	}
	if s.ByCategory[ErrorCategoryMalformedMetadata] > 0 {
		suggestions.WriteString("  - Review the flagged metadata documents by hand\n")
	}

	suggestions.WriteString("  - Check the run manifest for the full event log\n")

	return suggestions.String()
}

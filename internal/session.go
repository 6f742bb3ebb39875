package internal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// RunSession records the decisions of one timestamp run in manifest.jsonl.
type RunSession struct {
	ID           string   // Session ID (timestamp: 2025-01-15-103045)
	SessionDir   string   // Full path to session directory
	ManifestFile *os.File // Open file handle for manifest.jsonl
	Command      string
	InputPath    string
	stats        RunStats
}

// RunStats tracks statistics for a run
type RunStats struct {
	TotalScanned int
	Updated      int
	Unchanged    int
	Conflicts    int
	Unresolved   int
	Errors       int
}

// ManifestEvent represents a single event in the manifest log
type ManifestEvent struct {
	Event      string `json:"event"`
	Ts         string `json:"ts"`
	File       string `json:"file,omitempty"`
	Dest       string `json:"dest,omitempty"`
	Embedded   string `json:"embedded,omitempty"`
	Candidate  string `json:"candidate,omitempty"`
	Provenance string `json:"provenance,omitempty"`
	Value      string `json:"value,omitempty"`
	Reason     string `json:"reason,omitempty"`
	Error      string `json:"error,omitempty"`

	// Error details (for categorized errors)
	ErrorCategory   string `json:"error_category,omitempty"`
	ErrorSeverity   string `json:"error_severity,omitempty"`
	ErrorSuggestion string `json:"error_suggestion,omitempty"`

	// Session start/end fields
	Command      string `json:"command,omitempty"`
	InputPath    string `json:"input_path,omitempty"`
	TotalFiles   int    `json:"total_files,omitempty"`
	TotalScanned int    `json:"total_scanned,omitempty"`
	Updated      int    `json:"updated,omitempty"`
	Unchanged    int    `json:"unchanged,omitempty"`
	Conflicts    int    `json:"conflicts,omitempty"`
	Unresolved   int    `json:"unresolved,omitempty"`
	ErrorCount   int    `json:"errors,omitempty"`
}

// NewRunSession creates <manifestDir>/<timestamp>/manifest.jsonl.
func NewRunSession(manifestDir, command, inputPath string) (*RunSession, error) {
	sessionID := time.Now().Format("2006-01-02-150405")
	sessionDir := filepath.Join(manifestDir, sessionID)

	if err := os.MkdirAll(sessionDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}

	manifestPath := filepath.Join(sessionDir, "manifest.jsonl")
	manifestFile, err := os.OpenFile(manifestPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create manifest file: %w", err)
	}

	return &RunSession{
		ID:           sessionID,
		SessionDir:   sessionDir,
		ManifestFile: manifestFile,
		Command:      command,
		InputPath:    inputPath,
	}, nil
}

func timeString(t *ResolvedTimestamp) string {
	if t == nil {
		return ""
	}
	return t.Time.Format(time.RFC3339)
}

func provenanceOf(t *ResolvedTimestamp) string {
	if t == nil {
		return ""
	}
	return string(t.Provenance)
}

// LogSessionStart writes the session start event to manifest
func (s *RunSession) LogSessionStart(totalFiles int) error {
	return s.writeEvent(ManifestEvent{
		Event:      "session_start",
		Ts:         now(),
		Command:    s.Command,
		InputPath:  s.InputPath,
		TotalFiles: totalFiles,
	})
}

// LogResolution records the outcome for one file. dest is the copy that was
// written, if any.
func (s *RunSession) LogResolution(res *Resolution, outcome WriteOutcome, dest string) error {
	s.stats.TotalScanned++

	event := ManifestEvent{
		Ts:         now(),
		File:       res.Path,
		Dest:       dest,
		Embedded:   timeString(res.Embedded),
		Candidate:  timeString(res.Candidate),
		Provenance: provenanceOf(res.Candidate),
		Value:      timeString(res.Timestamp),
		Reason:     res.Reason,
	}

	switch {
	case res.State == StateConflictFlagged || outcome == OutcomeConflict:
		s.stats.Conflicts++
		event.Event = "conflict"
	case res.State == StateUnresolved:
		s.stats.Unresolved++
		event.Event = "unresolved"
	case outcome == OutcomeUpdated:
		s.stats.Updated++
		event.Event = "updated"
	default:
		s.stats.Unchanged++
		event.Event = "unchanged"
	}
	return s.writeEvent(event)
}

// LogDetailedError logs a categorized error with full details
func (s *RunSession) LogDetailedError(src string, procErr *ProcessError) error {
	s.stats.TotalScanned++
	s.stats.Errors++

	event := ManifestEvent{
		Event:           "error",
		Ts:              now(),
		File:            src,
		Error:           procErr.OriginalErr.Error(),
		ErrorCategory:   string(procErr.Category),
		ErrorSeverity:   string(procErr.Severity),
		ErrorSuggestion: procErr.Suggestion,
	}
	if v, ok := procErr.Context["embedded"]; ok {
		event.Embedded = v
	}
	if v, ok := procErr.Context["dest"]; ok {
		event.Dest = v
	}

	return s.writeEvent(event)
}

// LogSessionEnd writes the session end event to manifest
func (s *RunSession) LogSessionEnd() error {
	return s.writeEvent(ManifestEvent{
		Event:        "session_end",
		Ts:           now(),
		TotalScanned: s.stats.TotalScanned,
		Updated:      s.stats.Updated,
		Unchanged:    s.stats.Unchanged,
		Conflicts:    s.stats.Conflicts,
		Unresolved:   s.stats.Unresolved,
		ErrorCount:   s.stats.Errors,
	})
}

// GetStats returns the current session statistics
func (s *RunSession) GetStats() RunStats {
	return s.stats
}

// Close closes the manifest file and session
func (s *RunSession) Close() error {
	if s.ManifestFile != nil {
		return s.ManifestFile.Close()
	}
	return nil
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// writeEvent writes a manifest event as a JSON line
func (s *RunSession) writeEvent(event ManifestEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if _, err := s.ManifestFile.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write to manifest: %w", err)
	}

	return s.ManifestFile.Sync()
}

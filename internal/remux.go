package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ContainerLayout encodes creation_time: microseconds, Z for UTC and a
// numeric offset otherwise.
const ContainerLayout = "2006-01-02T15:04:05.000000Z07:00"

const creationTimeTag = "creation_time"

// StreamTags are the metadata tags of one container stream.
type StreamTags map[string]string

// StreamProber lists per-stream tags of a media container.
type StreamProber interface {
	ProbeStreams(ctx context.Context, path string) ([]StreamTags, error)
}

// ContainerRemuxer copies src to dst without re-encoding, setting tag to
// value on the container and on every stream.
type ContainerRemuxer interface {
	Remux(ctx context.Context, src, dst, tag, value string) error
}

// FormatContainerTime renders t for creation_time.
func FormatContainerTime(t time.Time) string {
	return t.Format(ContainerLayout)
}

func ParseContainerTime(value string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, strings.TrimSpace(value))
}

// StreamCreationTime returns the first creation_time found across streams.
func StreamCreationTime(streams []StreamTags) (string, bool) {
	for _, s := range streams {
		if v, ok := s[creationTimeTag]; ok && v != "" {
			return v, true
		}
	}
	return "", false
}

// FFmpeg implements StreamProber and ContainerRemuxer with the ffprobe and
// ffmpeg binaries.
type FFmpeg struct {
	FFmpegPath  string
	FFprobePath string
	Logger      *zap.Logger
}

func NewFFmpeg(ffmpegPath, ffprobePath string, logger *zap.Logger) *FFmpeg {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &FFmpeg{FFmpegPath: ffmpegPath, FFprobePath: ffprobePath, Logger: orNop(logger)}
}

func (f *FFmpeg) ProbeStreams(ctx context.Context, path string) ([]StreamTags, error) {
	cmd := exec.CommandContext(ctx, f.FFprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_streams",
		path,
	)
	output, err := cmd.Output()
	if err != nil {
		return nil, newCodecError(path, fmt.Errorf("ffprobe failed: %w", err))
	}

	var result struct {
		Streams []struct {
			Index int               `json:"index"`
			Tags  map[string]string `json:"tags"`
		} `json:"streams"`
	}
	if err := json.Unmarshal(output, &result); err != nil {
		return nil, newCodecError(path, fmt.Errorf("failed to parse ffprobe output: %w", err))
	}
	if len(result.Streams) == 0 {
		return nil, newCodecError(path, fmt.Errorf("no media info found"))
	}

	streams := make([]StreamTags, len(result.Streams))
	for i, s := range result.Streams {
		streams[i] = StreamTags(s.Tags)
		if streams[i] == nil {
			streams[i] = StreamTags{}
		}
	}
	return streams, nil
}

func (f *FFmpeg) Remux(ctx context.Context, src, dst, tag, value string) error {
	kv := tag + "=" + value
	cmd := exec.CommandContext(ctx, f.FFmpegPath,
		"-y",
		"-v", "error",
		"-i", src,
		"-map", "0",
		"-c", "copy",
		"-metadata", kv,
		"-metadata:s", kv,
		dst,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return newCodecError(src, fmt.Errorf("ffmpeg remux failed: %w: %s", err, strings.TrimSpace(stderr.String())))
	}
	orNop(f.Logger).Debug("Remuxed", zap.String("src", src), zap.String("dst", dst), zap.String("tag", kv))
	return nil
}

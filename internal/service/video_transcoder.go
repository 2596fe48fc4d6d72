package service

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type VideoProfile struct {
	Name          string
	Width         int
	Height        int
	FPS           int
	BitsPerSecond int
	MaxDuration   time.Duration
}

// VideoProfiles are tried in order until the output fits the budget.
var VideoProfiles = []VideoProfile{
	{Name: "720p", Width: 1280, Height: 720, FPS: 30, BitsPerSecond: 2_200_000, MaxDuration: 60 * time.Second},
	{Name: "480p", Width: 854, Height: 480, FPS: 30, BitsPerSecond: 1_200_000, MaxDuration: 60 * time.Second},
}

type VideoTranscoder interface {
	// Available reports whether the host can transcode at all.
	Available() bool
	// Transcode returns the re-encoded bytes and their mime type.
	Transcode(ctx context.Context, data []byte, profile VideoProfile) ([]byte, string, error)
}

type ffmpegTranscoder struct {
	binary string
}

func NewFFmpegTranscoder(binary string) VideoTranscoder {
	if binary == "" {
		binary = "ffmpeg"
	}
	return &ffmpegTranscoder{binary: binary}
}

func (t *ffmpegTranscoder) Available() bool {
	_, err := exec.LookPath(t.binary)
	return err == nil
}

func (t *ffmpegTranscoder) Transcode(ctx context.Context, data []byte, p VideoProfile) ([]byte, string, error) {
	dir, err := os.MkdirTemp("", "skyqueue-video-")
	if err != nil {
		return nil, "", err
	}
	defer os.RemoveAll(dir)

	in := filepath.Join(dir, "in")
	out := filepath.Join(dir, "out.mp4")
	if err := os.WriteFile(in, data, 0o600); err != nil {
		return nil, "", err
	}

	cmd := exec.CommandContext(ctx, t.binary, ffmpegArgs(in, out, p)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Run(); err != nil {
		return nil, "", fmt.Errorf("ffmpeg %s: %w: %s", p.Name, err, lastLine(stderr.String()))
	}

	encoded, err := os.ReadFile(out)
	if err != nil {
		return nil, "", err
	}
	slog.Debug("ffmpeg finished", "profile", p.Name, "took", time.Since(start), "size", len(encoded))
	return encoded, "video/mp4", nil
}

// ffmpegArgs scales down (never up) to fit the profile box, caps frame rate,
// bitrate and duration, and writes a streamable mp4.
func ffmpegArgs(in, out string, p VideoProfile) []string {
	kbps := strconv.Itoa(p.BitsPerSecond/1000) + "k"
	scale := fmt.Sprintf(
		"scale=w='min(%d,iw)':h='min(%d,ih)':force_original_aspect_ratio=decrease:force_divisible_by=2",
		p.Width, p.Height)
	return []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-i", in,
		"-t", strconv.Itoa(int(p.MaxDuration.Seconds())),
		"-vf", scale,
		"-r", strconv.Itoa(p.FPS),
		"-c:v", "libx264", "-preset", "veryfast",
		"-b:v", kbps, "-maxrate", kbps, "-bufsize", strconv.Itoa(p.BitsPerSecond/500) + "k",
		"-c:a", "aac", "-b:a", "128k",
		"-movflags", "+faststart",
		out,
	}
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}

package local

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// Piper output format: raw mono 16-bit little-endian PCM.
const (
	piperSampleRate = 22050
	bytesPerSample  = 2
)

// synthesizer shells out to a piper binary and captures raw PCM.
type synthesizer struct {
	binary  string
	model   string
	config  string
	timeout time.Duration
}

func newSynthesizer(binary, model string, timeout time.Duration) (*synthesizer, error) {
	s := &synthesizer{timeout: timeout}
	if s.timeout <= 0 {
		s.timeout = 30 * time.Second
	}

	var err error
	s.binary = binary
	if s.binary == "" {
		if s.binary, err = findBinary(); err != nil {
			return nil, err
		}
	}
	s.model = model
	if s.model == "" {
		if s.model, err = findModel(); err != nil {
			return nil, err
		}
	}
	if !strings.HasSuffix(s.model, ".onnx") {
		return nil, fmt.Errorf("voice model must be an .onnx file: %s", s.model)
	}
	if _, err := os.Stat(s.model); err != nil {
		return nil, fmt.Errorf("voice model not found: %w", err)
	}

	// Optional sidecar config next to the model.
	config := s.model + ".json"
	if _, err := os.Stat(config); err == nil {
		s.config = config
	}
	return s, nil
}

// findBinary locates piper in PATH or common install locations.
func findBinary() (string, error) {
	if path, err := exec.LookPath("piper"); err == nil {
		return path, nil
	}

	home, _ := os.UserHomeDir()
	for _, path := range []string{
		"/usr/local/bin/piper",
		"/usr/bin/piper",
		"/opt/piper/piper",
		filepath.Join(home, ".local/bin/piper"),
		filepath.Join(home, "bin/piper"),
	} {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("piper binary not found (https://github.com/rhasspy/piper)")
}

// findModel walks the standard voice directories for any .onnx model.
func findModel() (string, error) {
	home, _ := os.UserHomeDir()
	dirs := []string{
		filepath.Join(home, ".local/share/piper-voices"),
		filepath.Join(home, ".config/piper/voices"),
		"/usr/share/piper-voices",
		"/usr/local/share/piper-voices",
		"/opt/piper/voices",
	}

	for _, dir := range dirs {
		var found string
		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if !d.IsDir() && strings.HasSuffix(path, ".onnx") {
				found = path
				return io.EOF
			}
			return nil
		})
		if err == io.EOF {
			return found, nil
		}
	}
	return "", fmt.Errorf("no piper voice models found under ~/.local/share/piper-voices")
}

// synthesize runs piper over text and returns the raw PCM output.
func (s *synthesizer) synthesize(ctx context.Context, text string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	args := []string{"--model", s.model, "--output-raw"}
	if s.config != "" {
		args = append(args, "--config", s.config)
	}

	cmd := exec.CommandContext(ctx, s.binary, args...)
	cmd.Stdin = strings.NewReader(text)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return nil, fmt.Errorf("piper: %s: %w", msg, err)
		}
		return nil, fmt.Errorf("piper: %w", err)
	}
	return stdout.Bytes(), nil
}

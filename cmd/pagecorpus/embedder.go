package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"

	"github.com/hupe1980/pagecorpus/codec"
)

// commandEmbedder runs an external program per page image. The program gets
// the image path as its last argument and prints the vector as a JSON array
// of numbers on stdout.
type commandEmbedder struct {
	argv []string
}

func newCommandEmbedder(argv []string) (*commandEmbedder, error) {
	if len(argv) == 0 || argv[0] == "" {
		return nil, errors.New("embedding command is empty")
	}

	if _, err := exec.LookPath(argv[0]); err != nil {
		return nil, fmt.Errorf("embedding command: %w", err)
	}

	return &commandEmbedder{argv: argv}, nil
}

func (e *commandEmbedder) Embed(ctx context.Context, imagePath string) ([]float32, error) {
	args := append(append([]string(nil), e.argv[1:]...), imagePath)

	var stdout, stderr bytes.Buffer

	cmd := exec.CommandContext(ctx, e.argv[0], args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("embed %s: %w: %s", imagePath, err, bytes.TrimSpace(stderr.Bytes()))
	}

	var vec []float32
	if err := codec.Default.Unmarshal(stdout.Bytes(), &vec); err != nil {
		return nil, fmt.Errorf("embed %s: decode vector: %w", imagePath, err)
	}

	return vec, nil
}

// Package pv reads process variables over the instrument's variable-read channel.
package pv

import (
	"bytes"
	"context"
	"dataweb-backend/internal/components/assert"
	"dataweb-backend/internal/components/telemetry"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"github.com/klauspost/compress/zlib"
)

const (
	report_caget_read = "caget.read"
)

var (
	ErrNotHex        = errors.New("value is not hex encoded")
	ErrNotCompressed = errors.New("value is not zlib compressed")
)

// Reader reads the current value of a named variable as text.
type Reader interface {
	Read(ctx context.Context, name string) (string, error)
}

// CagetReader reads variables by running the Channel Access caget binary.
type CagetReader struct {
	binary  string
	timeout time.Duration
	tel     telemetry.API
}

func NewCagetReader(binary string, timeout time.Duration, tel telemetry.API) CagetReader {
	assert.NotEmptyStr(binary)
	assert.Positive("caget timeout", timeout)
	assert.NotNil(tel)

	return CagetReader{
		binary:  binary,
		timeout: timeout,
		tel:     telemetry.NewScopedAPI("pv", tel),
	}
}

// Read runs `caget -t -S <name>`, -S prints char arrays as strings.
func (r CagetReader) Read(ctx context.Context, name string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, r.binary, "-t", "-S", name)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	r.tel.ReportDebug(report_caget_read, name)
	err := cmd.Run()
	if err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return "", fmt.Errorf("caget %s: %w (%s)", name, err, strings.TrimSpace(stderr.String()))
	}
	return strings.TrimSpace(stdout.String()), nil
}

// DehexAndDecompress decodes a value that was zlib compressed and then hex encoded.
func DehexAndDecompress(value string) ([]byte, error) {
	compressed, err := hex.DecodeString(strings.TrimSpace(value))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotHex, err)
	}
	reader, err := zlib.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotCompressed, err)
	}
	defer reader.Close()

	out, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotCompressed, err)
	}
	return out, nil
}

// CompressAndHex is the inverse of DehexAndDecompress.
func CompressAndHex(data []byte) (string, error) {
	var buf bytes.Buffer
	writer := zlib.NewWriter(&buf)
	_, err := writer.Write(data)
	if err != nil {
		return "", err
	}
	err = writer.Close()
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(buf.Bytes()), nil
}

// StaticReader serves fixed values, an unknown name fails the read.
type StaticReader map[string]string

func (s StaticReader) Read(_ context.Context, name string) (string, error) {
	value, ok := s[name]
	if !ok {
		return "", fmt.Errorf("%s: no such variable", name)
	}
	return value, nil
}

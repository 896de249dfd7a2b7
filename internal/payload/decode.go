package payload

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// ErrMalformedPayload reports base64 malformation at either decode
// pass.
var ErrMalformedPayload = errors.New("malformed base64 payload")

// Decoder recovers the embedded archive from a fetched artifact. The
// protocol is fixed: decode base64 twice, then treat the result as an
// archive. Both passes are mandatory and unconditional.
type Decoder struct {
	log *zap.Logger
}

// NewDecoder returns a Decoder.
func NewDecoder(log *zap.Logger) *Decoder {
	return &Decoder{log: log}
}

// DecodeTwice applies both decode passes to the artifact at srcPath,
// writing the intermediate blob and the final archive under outDir.
// It returns the archive path.
func (d *Decoder) DecodeTwice(srcPath, outDir string) (string, error) {
	data, err := os.ReadFile(srcPath)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", srcPath, err)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", err
	}

	d.log.Debug("first base64 decode", zap.String("src", srcPath))
	first, err := decodeBase64(data)
	if err != nil {
		return "", fmt.Errorf("%w: first pass: %v", ErrMalformedPayload, err)
	}
	intermediate := filepath.Join(outDir, "encoded.b64")
	if err := os.WriteFile(intermediate, first, 0o644); err != nil {
		return "", err
	}

	d.log.Debug("second base64 decode")
	second, err := decodeBase64(first)
	if err != nil {
		return "", fmt.Errorf("%w: second pass: %v", ErrMalformedPayload, err)
	}
	archive := filepath.Join(outDir, "decoded.zip")
	if err := os.WriteFile(archive, second, 0o644); err != nil {
		return "", err
	}
	d.log.Info("decoded archive", zap.String("path", archive))
	return archive, nil
}

// decodeBase64 tolerates embedded whitespace, as delivered payloads
// are line-wrapped.
func decodeBase64(data []byte) ([]byte, error) {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\r', '\n':
			return -1
		}
		return r
	}, string(data))
	return base64.StdEncoding.DecodeString(cleaned)
}

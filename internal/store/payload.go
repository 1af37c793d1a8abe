package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"castpair/internal/domain"
)

// PayloadFileMode is the permission used for written payload files.
const PayloadFileMode os.FileMode = 0o600

// ErrEmptyPayload is returned when a payload source holds no data.
var ErrEmptyPayload = errors.New("payload is empty")

// WritePayload writes p as indented JSON to path, replacing any existing file.
func WritePayload(path string, p domain.Payload) error {
	b, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	if err := writeFile(path, b, PayloadFileMode); err != nil {
		return fmt.Errorf("write payload %s: %w", path, err)
	}
	return nil
}

// ReadPayload reads a raw JSON payload from path, or from stdin when path is "-".
func ReadPayload(path string, stdin io.Reader) ([]byte, error) {
	var (
		b   []byte
		err error
	)
	if path == "-" {
		b, err = io.ReadAll(stdin)
	} else {
		b, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}
	if len(bytes.TrimSpace(b)) == 0 {
		return nil, ErrEmptyPayload
	}
	return b, nil
}

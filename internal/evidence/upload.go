package evidence

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrUnsupportedType is returned for uploads whose extension is not allowed.
var ErrUnsupportedType = errors.New("unsupported file type")

// DefaultAllowedExtensions are the upload types accepted when none are configured.
var DefaultAllowedExtensions = []string{"png", "jpg", "jpeg", "pdf", "txt", "mp3", "wav", "mp4", "mov", "avi", "mkv"}

// UploadRecord is the metadata kept for one piece of uploaded evidence.
// Only OriginalName takes part in scoring.
type UploadRecord struct {
	OriginalName string    `json:"original_name"`
	SavedName    string    `json:"saved_name,omitempty"`
	SizeKB       float64   `json:"size_kb"`
	SHA256       string    `json:"sha256,omitempty"`
	UploadedAt   time.Time `json:"uploaded_at"`
}

// NewUploadRecord hashes r and returns its metadata. The content is consumed
// and not retained. A nil allowed list means DefaultAllowedExtensions.
func NewUploadRecord(name string, r io.Reader, now time.Time, allowed []string) (UploadRecord, error) {
	base := filepath.Base(strings.TrimSpace(name))
	if base == "" || base == "." || base == string(filepath.Separator) {
		return UploadRecord{}, errors.New("upload name is empty")
	}
	if !extensionAllowed(base, allowed) {
		return UploadRecord{}, fmt.Errorf("%w: %s", ErrUnsupportedType, base)
	}

	h := sha256.New()
	n, err := io.Copy(h, r)
	if err != nil {
		return UploadRecord{}, fmt.Errorf("hash upload: %w", err)
	}

	return UploadRecord{
		OriginalName: base,
		SavedName:    strings.ReplaceAll(uuid.NewString(), "-", "") + "_" + base,
		SizeKB:       math.Round(float64(n)/1024*100) / 100,
		SHA256:       hex.EncodeToString(h.Sum(nil)),
		UploadedAt:   now.UTC(),
	}, nil
}

func extensionAllowed(name string, allowed []string) bool {
	if allowed == nil {
		allowed = DefaultAllowedExtensions
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	if ext == "" {
		return false
	}
	for _, a := range allowed {
		if strings.TrimPrefix(strings.ToLower(strings.TrimSpace(a)), ".") == ext {
			return true
		}
	}
	return false
}

package classifier

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrBundleStateNotFound is returned when a family has no state.json.
var ErrBundleStateNotFound = errors.New("model bundle state not found")

// BundleState tracks the active and previous versions of one model family.
type BundleState struct {
	CurrentVersion  string `json:"current_version"`
	PreviousVersion string `json:"previous_version,omitempty"`
}

// Manifest lists the files of one bundle version with their digests.
type Manifest struct {
	Version string         `json:"version"`
	Files   []ManifestFile `json:"files"`
}

type ManifestFile struct {
	Path   string `json:"path"`
	Size   int64  `json:"size,omitempty"`
	SHA256 string `json:"sha256,omitempty"`
}

func stateFilePath(familyDir string) string {
	return filepath.Join(familyDir, "state.json")
}

// LoadBundleState reads <family>/state.json.
func LoadBundleState(familyDir string) (BundleState, error) {
	familyDir = strings.TrimSpace(familyDir)
	if familyDir == "" {
		return BundleState{}, errors.New("family dir is empty")
	}

	data, err := os.ReadFile(stateFilePath(familyDir))
	if err != nil {
		if os.IsNotExist(err) {
			return BundleState{}, ErrBundleStateNotFound
		}
		return BundleState{}, fmt.Errorf("read bundle state: %w", err)
	}

	var state BundleState
	if err := json.Unmarshal(data, &state); err != nil {
		return BundleState{}, fmt.Errorf("decode bundle state: %w", err)
	}
	return state, nil
}

// SaveBundleState writes <family>/state.json atomically.
func SaveBundleState(familyDir string, state BundleState) error {
	familyDir = strings.TrimSpace(familyDir)
	if familyDir == "" {
		return errors.New("family dir is empty")
	}
	if err := os.MkdirAll(familyDir, 0o755); err != nil {
		return fmt.Errorf("create family dir: %w", err)
	}

	state.CurrentVersion = strings.TrimSpace(state.CurrentVersion)
	state.PreviousVersion = strings.TrimSpace(state.PreviousVersion)

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("encode bundle state: %w", err)
	}

	tmp, err := os.CreateTemp(familyDir, "state.json.tmp-*")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp state file: %w", err)
	}
	if err := os.Rename(tmp.Name(), stateFilePath(familyDir)); err != nil {
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}

// ResolveActiveDir returns the directory holding the active model files of a
// family: <family>/<current_version> when state.json names one, else the
// family dir itself.
func ResolveActiveDir(familyDir string) (dir string, version string, err error) {
	state, err := LoadBundleState(familyDir)
	switch {
	case errors.Is(err, ErrBundleStateNotFound):
		return familyDir, "unversioned", nil
	case err != nil:
		return "", "", err
	}
	if state.CurrentVersion == "" {
		return familyDir, "unversioned", nil
	}
	versioned := filepath.Join(familyDir, state.CurrentVersion)
	if _, err := os.Stat(versioned); err != nil {
		return "", "", fmt.Errorf("current_version %s: %w", state.CurrentVersion, err)
	}
	return versioned, state.CurrentVersion, nil
}

// VerifyBundle checks <family>/<version>/manifest.json sizes and digests.
func VerifyBundle(familyDir, version string) error {
	if strings.TrimSpace(familyDir) == "" || strings.TrimSpace(version) == "" {
		return errors.New("family dir or version missing")
	}
	dir := filepath.Join(familyDir, version)

	raw, err := os.ReadFile(filepath.Join(dir, "manifest.json"))
	if err != nil {
		return fmt.Errorf("read manifest: %w", err)
	}
	var manifest Manifest
	if err := json.Unmarshal(raw, &manifest); err != nil {
		return fmt.Errorf("decode manifest: %w", err)
	}
	if manifest.Version != version {
		return fmt.Errorf("manifest version mismatch: expected %s got %s", version, manifest.Version)
	}
	if len(manifest.Files) == 0 {
		return errors.New("manifest lists no files")
	}

	for _, f := range manifest.Files {
		local, err := resolveBundlePath(dir, f.Path)
		if err != nil {
			return fmt.Errorf("resolve path %s: %w", f.Path, err)
		}
		info, err := os.Stat(local)
		if err != nil {
			return fmt.Errorf("stat %s: %w", f.Path, err)
		}
		if f.Size > 0 && info.Size() != f.Size {
			return fmt.Errorf("size mismatch for %s: expected %d got %d", f.Path, f.Size, info.Size())
		}
		if f.SHA256 == "" {
			continue
		}
		sum, err := fileSHA256(local)
		if err != nil {
			return fmt.Errorf("hash %s: %w", f.Path, err)
		}
		if !strings.EqualFold(sum, f.SHA256) {
			return fmt.Errorf("sha256 mismatch for %s: expected %s got %s", f.Path, f.SHA256, sum)
		}
	}
	return nil
}

// ActivateVersion verifies a bundle version and makes it current.
func ActivateVersion(familyDir, version string) (BundleState, error) {
	version = strings.TrimSpace(version)
	if err := VerifyBundle(familyDir, version); err != nil {
		return BundleState{}, fmt.Errorf("verify %s: %w", version, err)
	}

	state, err := LoadBundleState(familyDir)
	if err != nil && !errors.Is(err, ErrBundleStateNotFound) {
		return BundleState{}, err
	}
	if state.CurrentVersion != version {
		state.PreviousVersion = state.CurrentVersion
		state.CurrentVersion = version
	}
	if err := SaveBundleState(familyDir, state); err != nil {
		return BundleState{}, err
	}
	return state, nil
}

func resolveBundlePath(dir, rel string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(rel))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes bundle dir")
	}
	return filepath.Join(dir, clean), nil
}

func fileSHA256(path string) (string, error) {
	fh, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer fh.Close()
	h := sha256.New()
	if _, err := io.Copy(h, fh); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

package classifier

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeBundle(t *testing.T, familyDir, version string, files map[string]string, tamper string) {
	t.Helper()
	dir := filepath.Join(familyDir, version)
	manifest := Manifest{Version: version}
	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
		sum := sha256.Sum256([]byte(content))
		manifest.Files = append(manifest.Files, ManifestFile{Path: name, Size: int64(len(content)), SHA256: hex.EncodeToString(sum[:])})
	}
	if tamper != "" {
		if err := os.WriteFile(filepath.Join(dir, tamper), []byte("tampered!"), 0o644); err != nil {
			t.Fatalf("tamper: %v", err)
		}
	}
	data, _ := json.Marshal(manifest)
	if err := os.WriteFile(filepath.Join(dir, "manifest.json"), data, 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
}

func TestBundleStateRoundTrip(t *testing.T) {
	dir := t.TempDir()
	if _, err := LoadBundleState(dir); !errors.Is(err, ErrBundleStateNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := SaveBundleState(dir, BundleState{CurrentVersion: " v2 ", PreviousVersion: "v1"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	st, err := LoadBundleState(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if st.CurrentVersion != "v2" || st.PreviousVersion != "v1" {
		t.Fatalf("unexpected state %+v", st)
	}
}

func TestResolveActiveDir(t *testing.T) {
	family := t.TempDir()
	dir, version, err := ResolveActiveDir(family)
	if err != nil || dir != family || version != "unversioned" {
		t.Fatalf("unversioned family: dir=%s version=%s err=%v", dir, version, err)
	}

	if err := SaveBundleState(family, BundleState{CurrentVersion: "v3"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, _, err := ResolveActiveDir(family); err == nil {
		t.Fatalf("expected error when current_version dir is missing")
	}
	if err := os.MkdirAll(filepath.Join(family, "v3"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	dir, version, err = ResolveActiveDir(family)
	if err != nil || dir != filepath.Join(family, "v3") || version != "v3" {
		t.Fatalf("versioned family: dir=%s version=%s err=%v", dir, version, err)
	}
}

func TestActivateVersion(t *testing.T) {
	family := t.TempDir()
	files := map[string]string{"model.onnx": "weights", "label_map.json": `["no","yes"]`, "tokenizer/vocab.txt": "[PAD]\n[UNK]\n[CLS]\n[SEP]\n"}
	writeBundle(t, family, "v1", files, "")
	writeBundle(t, family, "v2", files, "")

	if _, err := ActivateVersion(family, "v1"); err != nil {
		t.Fatalf("activate v1: %v", err)
	}
	st, err := ActivateVersion(family, "v2")
	if err != nil {
		t.Fatalf("activate v2: %v", err)
	}
	if st.CurrentVersion != "v2" || st.PreviousVersion != "v1" {
		t.Fatalf("unexpected state %+v", st)
	}
}

func TestActivateRejectsTamperedBundle(t *testing.T) {
	family := t.TempDir()
	writeBundle(t, family, "v1", map[string]string{"model.onnx": "weights"}, "model.onnx")
	_, err := ActivateVersion(family, "v1")
	if err == nil {
		t.Fatalf("expected verification failure")
	}
	if !strings.Contains(err.Error(), "mismatch") {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := LoadBundleState(family); !errors.Is(err, ErrBundleStateNotFound) {
		t.Fatalf("state must not be written on failure, got %v", err)
	}
}

func TestResolveBundlePathRejectsEscape(t *testing.T) {
	if _, err := resolveBundlePath("/tmp/bundle", "../etc/passwd"); err == nil {
		t.Fatalf("expected escape to be rejected")
	}
	if _, err := resolveBundlePath("/tmp/bundle", "tokenizer/vocab.txt"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

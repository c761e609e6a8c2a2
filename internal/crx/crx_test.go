package crx

import (
	"bytes"
	"crypto/rsa"
	"crypto/x509"
	"encoding/binary"
	"encoding/pem"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentx-labs/extmgr/internal/extension"
	"github.com/agentx-labs/extmgr/internal/exterr"
)

var (
	keyOnce sync.Once
	testKey *rsa.PrivateKey
)

func signingKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	keyOnce.Do(func() {
		var err error
		testKey, err = GenerateKey(1024)
		if err != nil {
			panic(err)
		}
	})
	return testKey
}

func sourceTree(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"manifest.json":      `{"name": "Packed", "version": "1.0"}`,
		"script.js":          "console.log('hi')",
		"js_files/nested.js": "// nested",
		".git/config":        "[core]",
		"signing.pem":        "secret",
	}
	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return dir
}

func writeContainer(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ext.crx")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func packed(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, Pack(&buf, sourceTree(t), signingKey(t), DefaultExcludes...))
	return buf.Bytes()
}

func TestPackOpenExtract(t *testing.T) {
	key := signingKey(t)
	path := writeContainer(t, packed(t))

	c, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, path, c.Path())

	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	assert.Equal(t, extension.IDFromPublicKey(der), c.ID())
	assert.True(t, extension.IsValidID(c.ID()))

	dir := filepath.Join(t.TempDir(), "out")
	require.NoError(t, c.Extract(dir))

	data, err := os.ReadFile(filepath.Join(dir, "js_files", "nested.js"))
	require.NoError(t, err)
	assert.Equal(t, "// nested", string(data))

	_, err = os.Stat(filepath.Join(dir, "manifest.json"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, ".git"))
	assert.True(t, os.IsNotExist(err), "excluded directory was packed")
	_, err = os.Stat(filepath.Join(dir, "signing.pem"))
	assert.True(t, os.IsNotExist(err), "excluded key file was packed")
}

func TestBuildPayload_Deterministic(t *testing.T) {
	dir := sourceTree(t)
	a, err := BuildPayload(dir)
	require.NoError(t, err)
	b, err := BuildPayload(dir)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestBuildPayload_InvalidExclude(t *testing.T) {
	_, err := BuildPayload(sourceTree(t), "[")
	assert.Error(t, err)
}

func TestSameKeySameID(t *testing.T) {
	first, err := Read(bytes.NewReader(packed(t)))
	require.NoError(t, err)
	second, err := Read(bytes.NewReader(packed(t)))
	require.NoError(t, err)
	assert.Equal(t, first.ID(), second.ID())
}

func TestOpen_Errors(t *testing.T) {
	good := packed(t)

	header := func(magic string, version, keyLen, sigLen uint32) []byte {
		h := make([]byte, headerSize)
		copy(h, magic)
		binary.LittleEndian.PutUint32(h[4:8], version)
		binary.LittleEndian.PutUint32(h[8:12], keyLen)
		binary.LittleEndian.PutUint32(h[12:16], sigLen)
		return h
	}

	tampered := append([]byte(nil), good...)
	tampered[len(tampered)-10] ^= 0xff

	badKey := append([]byte(nil), good...)
	badKey[headerSize] ^= 0xff

	tests := []struct {
		name string
		data []byte
		kind exterr.Kind
	}{
		{"empty file", nil, exterr.EmptyOrTruncatedContainer},
		{"short header", []byte("Cr24\x02\x00"), exterr.EmptyOrTruncatedContainer},
		{"bad magic", append(header("PK\x03\x04", 2, 4, 4), make([]byte, 16)...), exterr.BadMagicNumber},
		{"unsupported version", append(header(Magic, 3, 4, 4), make([]byte, 16)...), exterr.BadMagicNumber},
		{"truncated key", append(header(Magic, 2, 100, 4), make([]byte, 10)...), exterr.EmptyOrTruncatedContainer},
		{"truncated signature", append(header(Magic, 2, 4, 100), make([]byte, 10)...), exterr.EmptyOrTruncatedContainer},
		{"no payload", append(header(Magic, 2, 4, 4), make([]byte, 8)...), exterr.EmptyOrTruncatedContainer},
		{"oversized key length", header(Magic, 2, MaxKeySize+1, 4), exterr.InvalidSignature},
		{"garbage key", append(header(Magic, 2, 4, 4), make([]byte, 64)...), exterr.InvalidSignature},
		{"tampered payload", tampered, exterr.InvalidSignature},
		{"corrupted key", badKey, exterr.InvalidSignature},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Open(writeContainer(t, tt.data))
			require.Error(t, err)
			assert.Equal(t, tt.kind, exterr.KindOf(err), "err = %v", err)
		})
	}
}

func TestOpen_MissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.crx")
	_, err := Open(path)
	require.Error(t, err)

	var e *exterr.Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, exterr.CannotReadFile, e.Kind)
	assert.Equal(t, path, e.Subject)
}

func signedPayload(t *testing.T, payload []byte) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, payload, signingKey(t)))
	return writeContainer(t, buf.Bytes())
}

func zipOf(t *testing.T, entries map[string]string, symlink string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range entries {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	if symlink != "" {
		fh := &zip.FileHeader{Name: symlink}
		fh.SetMode(os.ModeSymlink | 0o777)
		w, err := zw.CreateHeader(fh)
		require.NoError(t, err)
		_, err = w.Write([]byte("/etc/passwd"))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestExtract_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
	}{
		{"not a zip", []byte("this is plain text, not an archive")},
		{"parent traversal", zipOf(t, map[string]string{"../evil.js": "x"}, "")},
		{"absolute entry", zipOf(t, map[string]string{"/tmp/evil.js": "x"}, "")},
		{"symlink entry", zipOf(t, map[string]string{"manifest.json": "{}"}, "link")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := Open(signedPayload(t, tt.payload))
			require.NoError(t, err)

			parent := t.TempDir()
			err = c.Extract(filepath.Join(parent, "out"))
			require.Error(t, err)
			assert.True(t, errors.Is(err, exterr.ErrCannotReadFile), "err = %v", err)

			_, statErr := os.Stat(filepath.Join(parent, "evil.js"))
			assert.True(t, os.IsNotExist(statErr), "entry escaped the extraction directory")
		})
	}
}

func TestKeyPEMRoundTrip(t *testing.T) {
	key := signingKey(t)
	dir := t.TempDir()

	pkcs1 := filepath.Join(dir, "pkcs1.pem")
	require.NoError(t, os.WriteFile(pkcs1, EncodePrivateKeyPEM(key), 0o600))
	loaded, err := LoadPrivateKey(pkcs1)
	require.NoError(t, err)
	assert.True(t, key.Equal(loaded))

	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	pkcs8 := filepath.Join(dir, "pkcs8.pem")
	require.NoError(t, os.WriteFile(pkcs8, pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), 0o600))
	loaded, err = LoadPrivateKey(pkcs8)
	require.NoError(t, err)
	assert.True(t, key.Equal(loaded))

	_, err = ParsePrivateKey([]byte("not pem"))
	assert.Error(t, err)
	_, err = LoadPrivateKey(filepath.Join(dir, "missing.pem"))
	assert.Error(t, err)
}

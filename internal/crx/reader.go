package crx

import (
	"bytes"
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
	"github.com/klauspost/compress/zip"

	"github.com/agentx-labs/extmgr/internal/extension"
	"github.com/agentx-labs/extmgr/internal/exterr"
)

const (
	// Magic opens every container.
	Magic = "Cr24"
	// FormatVersion is the only header version understood.
	FormatVersion uint32 = 2

	headerSize = 16

	// MaxKeySize bounds the declared public key length.
	MaxKeySize = 64 << 10
	// MaxSignatureSize bounds the declared signature length.
	MaxSignatureSize = 64 << 10
	// MaxPayloadSize bounds the archive that follows the header.
	MaxPayloadSize = 256 << 20
	// MaxExtractedSize bounds the total uncompressed size of a payload.
	MaxExtractedSize = 1 << 30
)

const zipMIME = "application/zip"

// Container is a verified container held in memory.
type Container struct {
	path      string
	publicKey []byte
	signature []byte
	payload   []byte
}

// Open reads and verifies the container at path.
func Open(path string) (*Container, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, exterr.New(exterr.CannotReadFile, path, err)
	}
	defer f.Close()

	c, err := Read(f)
	if err != nil {
		var e *exterr.Error
		if errors.As(err, &e) && e.Kind == exterr.CannotReadFile && e.Subject == "" {
			e.Subject = path
		}
		return nil, err
	}
	c.path = path
	return c, nil
}

// Read parses and verifies a container from r.
func Read(r io.Reader) (*Container, error) {
	var header [headerSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, readErr(err)
	}

	if string(header[0:4]) != Magic {
		return nil, exterr.New(exterr.BadMagicNumber, "", nil)
	}
	if v := binary.LittleEndian.Uint32(header[4:8]); v != FormatVersion {
		return nil, exterr.New(exterr.BadMagicNumber, "", fmt.Errorf("unsupported format version %d", v))
	}

	keyLen := binary.LittleEndian.Uint32(header[8:12])
	sigLen := binary.LittleEndian.Uint32(header[12:16])
	if keyLen == 0 || keyLen > MaxKeySize {
		return nil, exterr.New(exterr.InvalidSignature, "", fmt.Errorf("public key length %d out of range", keyLen))
	}
	if sigLen == 0 || sigLen > MaxSignatureSize {
		return nil, exterr.New(exterr.InvalidSignature, "", fmt.Errorf("signature length %d out of range", sigLen))
	}

	c := &Container{
		publicKey: make([]byte, keyLen),
		signature: make([]byte, sigLen),
	}
	if _, err := io.ReadFull(r, c.publicKey); err != nil {
		return nil, readErr(err)
	}
	if _, err := io.ReadFull(r, c.signature); err != nil {
		return nil, readErr(err)
	}

	payload, err := io.ReadAll(io.LimitReader(r, MaxPayloadSize+1))
	if err != nil {
		return nil, exterr.New(exterr.CannotReadFile, "", err)
	}
	if len(payload) == 0 {
		return nil, exterr.New(exterr.EmptyOrTruncatedContainer, "", nil)
	}
	if len(payload) > MaxPayloadSize {
		return nil, exterr.New(exterr.CannotReadFile, "", fmt.Errorf("payload exceeds %d bytes", MaxPayloadSize))
	}
	c.payload = payload

	if err := c.verify(); err != nil {
		return nil, exterr.New(exterr.InvalidSignature, "", err)
	}
	return c, nil
}

func readErr(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return exterr.New(exterr.EmptyOrTruncatedContainer, "", err)
	}
	return exterr.New(exterr.CannotReadFile, "", err)
}

func (c *Container) verify() error {
	pub, err := x509.ParsePKIXPublicKey(c.publicKey)
	if err != nil {
		return fmt.Errorf("parsing public key: %w", err)
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return fmt.Errorf("public key is not RSA")
	}
	digest := sha256.Sum256(c.payload)
	if err := rsa.VerifyPKCS1v15(rsaPub, crypto.SHA256, digest[:], c.signature); err != nil {
		return fmt.Errorf("signature verification failed: %w", err)
	}
	return nil
}

// ID returns the extension id derived from the container's public key.
func (c *Container) ID() string {
	return extension.IDFromPublicKey(c.publicKey)
}

// PublicKey returns the DER encoded public key.
func (c *Container) PublicKey() []byte {
	return append([]byte(nil), c.publicKey...)
}

// Path returns the file the container was opened from, if any.
func (c *Container) Path() string {
	return c.path
}

// Extract unpacks the zip payload into dir, which is created if needed.
func (c *Container) Extract(dir string) error {
	subject := filepath.Base(c.path)
	if c.path == "" {
		subject = "payload"
	}
	fail := func(err error) error {
		return exterr.New(exterr.CannotReadFile, subject, err)
	}

	if !isZip(c.payload) {
		return fail(fmt.Errorf("payload is %s, not a zip archive", mimetype.Detect(c.payload).String()))
	}

	zr, err := zip.NewReader(bytes.NewReader(c.payload), int64(len(c.payload)))
	if err != nil {
		return fail(fmt.Errorf("opening payload: %w", err))
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fail(err)
	}

	var total int64
	for _, f := range zr.File {
		n, err := extractEntry(f, dir, MaxExtractedSize-total)
		if err != nil {
			return fail(err)
		}
		total += n
	}
	return nil
}

// isZip reports whether data sniffs as a zip archive or a zip based format.
func isZip(data []byte) bool {
	for m := mimetype.Detect(data); m != nil; m = m.Parent() {
		if m.Is(zipMIME) {
			return true
		}
	}
	return false
}

// extractEntry writes one archive entry below dir and returns the number of
// bytes written. Entries may not escape dir, be symlinks or exceed budget.
func extractEntry(f *zip.File, dir string, budget int64) (int64, error) {
	name := filepath.FromSlash(f.Name)
	if !filepath.IsLocal(name) {
		return 0, fmt.Errorf("archive entry %q escapes the extraction directory", f.Name)
	}
	dest := filepath.Join(dir, name)

	mode := f.Mode()
	switch {
	case mode.IsDir():
		return 0, os.MkdirAll(dest, 0o755)
	case mode&os.ModeSymlink != 0:
		return 0, fmt.Errorf("archive entry %q is a symlink", f.Name)
	case !mode.IsRegular():
		return 0, fmt.Errorf("archive entry %q is not a regular file", f.Name)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return 0, err
	}

	rc, err := f.Open()
	if err != nil {
		return 0, fmt.Errorf("opening %q: %w", f.Name, err)
	}
	defer rc.Close()

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, err
	}

	n, err := io.Copy(out, io.LimitReader(rc, budget+1))
	if err != nil {
		out.Close()
		return n, fmt.Errorf("extracting %q: %w", f.Name, err)
	}
	if err := out.Close(); err != nil {
		return n, err
	}
	if n > budget {
		return n, fmt.Errorf("archive expands beyond %d bytes", MaxExtractedSize)
	}
	return n, nil
}

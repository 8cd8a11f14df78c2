// Package seal computes and verifies three-layer integrity seals over
// evidence: a content hash, a metadata hash and a keyed signature binding
// the two to the sealing time and algorithm version.
package seal

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"verum/internal/security"
)

// DefaultAlgorithmVersion is the version recorded in new seals.
const DefaultAlgorithmVersion = "1.0.0"

// SaltSize is the number of random bytes drawn for every seal.
const SaltSize = 32

// keyDomain separates seal keys from any other use of the content hash.
const keyDomain = "verum-omnis-forensic"

// Errors
var (
	ErrNilSeal = errors.New("seal: nil seal")
)

// Device describes the capture device.
type Device struct {
	Manufacturer string `json:"manufacturer"`
	Model        string `json:"model"`
	OSVersion    string `json:"os_version"`
}

// String renders the device on one line.
func (d Device) String() string {
	s := strings.TrimSpace(d.Manufacturer + " " + d.Model)
	if d.OSVersion != "" {
		s += " (" + d.OSVersion + ")"
	}
	if s == "" {
		return "unknown device"
	}
	return s
}

// Metadata is the description sealed alongside the content.
type Metadata struct {
	CaseLabel string
	Device    Device
	KV        map[string]string
}

// Seal is the serialized integrity record.
type Seal struct {
	ContentHash       string            `json:"content_hash"`
	MetadataHash      string            `json:"metadata_hash"`
	CombinedSignature string            `json:"combined_signature"`
	Timestamp         time.Time         `json:"timestamp"`
	Salt              string            `json:"salt"`
	AlgorithmVersion  string            `json:"algorithm_version"`
	CaseLabel         string            `json:"case_label"`
	Device            Device            `json:"device_descriptor"`
	MetadataKV        map[string]string `json:"metadata_kv"`
}

// VerificationResult reports each seal layer independently.
type VerificationResult struct {
	ContentIntact   bool   `json:"content_intact"`
	MetadataIntact  bool   `json:"metadata_intact"`
	SignatureIntact bool   `json:"signature_intact"`
	OverallValid    bool   `json:"overall_valid"`
	Message         string `json:"message"`
}

// Option configures a Sealer.
type Option func(*Sealer)

// WithAlgorithmVersion sets the version recorded in new seals.
func WithAlgorithmVersion(v string) Option {
	return func(s *Sealer) {
		if v != "" {
			s.version = v
		}
	}
}

// WithClock sets the time source for seal timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Sealer) { s.now = now }
}

// Sealer creates and verifies seals.
type Sealer struct {
	version string
	now     func() time.Time
	random  io.Reader
}

// New creates a sealer drawing salts from crypto/rand.
func New(opts ...Option) *Sealer {
	s := &Sealer{version: DefaultAlgorithmVersion, now: time.Now, random: rand.Reader}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Seal hashes content and metadata and signs both under a fresh salt. It
// fails only when the system random source fails.
func (s *Sealer) Seal(content []byte, meta Metadata) (*Seal, error) {
	salt := make([]byte, SaltSize)
	if err := security.ReadSecureRandom(s.random, salt); err != nil {
		return nil, fmt.Errorf("seal: generate salt: %w", err)
	}

	out := &Seal{
		ContentHash:      ContentHash(content),
		Timestamp:        s.now().Truncate(time.Second),
		Salt:             hex.EncodeToString(salt),
		AlgorithmVersion: s.version,
		CaseLabel:        meta.CaseLabel,
		Device:           meta.Device,
		MetadataKV:       copyKV(meta.KV),
	}
	out.MetadataHash = MetadataHash(out.CaseLabel, out.Timestamp, out.Device, out.AlgorithmVersion, out.MetadataKV)
	out.CombinedSignature = Signature(out.ContentHash, out.MetadataHash, out.Timestamp, out.AlgorithmVersion, out.Salt)
	return out, nil
}

// Verify recomputes every layer from the presented content and metadata.
// Timestamp, device, case label, version and salt come from the seal.
func Verify(seal *Seal, content []byte, kv map[string]string) VerificationResult {
	if seal == nil {
		return VerificationResult{Message: ErrNilSeal.Error()}
	}

	contentHash := ContentHash(content)
	metadataHash := MetadataHash(seal.CaseLabel, seal.Timestamp, seal.Device, seal.AlgorithmVersion, kv)
	signature := Signature(contentHash, metadataHash, seal.Timestamp, seal.AlgorithmVersion, seal.Salt)

	r := VerificationResult{
		ContentIntact:   hmac.Equal([]byte(contentHash), []byte(seal.ContentHash)),
		MetadataIntact:  hmac.Equal([]byte(metadataHash), []byte(seal.MetadataHash)),
		SignatureIntact: hmac.Equal([]byte(signature), []byte(seal.CombinedSignature)),
	}
	r.OverallValid = r.ContentIntact && r.MetadataIntact && r.SignatureIntact
	r.Message = r.describe()
	return r
}

func (r VerificationResult) describe() string {
	if r.OverallValid {
		return "Evidence integrity verified: content, metadata and signature match the seal"
	}
	var failed []string
	if !r.ContentIntact {
		failed = append(failed, "content")
	}
	if !r.MetadataIntact {
		failed = append(failed, "metadata")
	}
	if !r.SignatureIntact {
		failed = append(failed, "signature")
	}
	return "Integrity check failed: " + strings.Join(failed, ", ") + " modified since sealing"
}

// ContentHash returns the hex SHA-512 of content.
func ContentHash(content []byte) string {
	sum := sha512.Sum512(content)
	return hex.EncodeToString(sum[:])
}

type kvPair struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type canonicalMetadata struct {
	CaseLabel        string   `json:"case_label"`
	Timestamp        string   `json:"timestamp"`
	Device           Device   `json:"device"`
	AlgorithmVersion string   `json:"algorithm_version"`
	Metadata         []kvPair `json:"metadata"`
}

// MetadataHash returns the hex SHA-512 of the canonical serialization of
// the sealed fields, with key-value pairs sorted by key.
func MetadataHash(caseLabel string, ts time.Time, device Device, version string, kv map[string]string) string {
	keys := make([]string, 0, len(kv))
	for k := range kv {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]kvPair, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, kvPair{Key: k, Value: kv[k]})
	}

	data, _ := json.Marshal(canonicalMetadata{
		CaseLabel:        caseLabel,
		Timestamp:        FormatTimestamp(ts),
		Device:           device,
		AlgorithmVersion: version,
		Metadata:         pairs,
	})
	sum := sha512.Sum512(data)
	return hex.EncodeToString(sum[:])
}

// Signature returns the hex HMAC-SHA512 over content hash, metadata hash,
// epoch seconds and version, keyed by SHA-512("{content}:{salt}:domain").
func Signature(contentHash, metadataHash string, ts time.Time, version, salt string) string {
	key := sha512.Sum512([]byte(contentHash + ":" + salt + ":" + keyDomain))
	mac := hmac.New(sha512.New, key[:])
	mac.Write([]byte(contentHash + "|" + metadataHash + "|" + strconv.FormatInt(ts.Unix(), 10) + "|" + version))
	return hex.EncodeToString(mac.Sum(nil))
}

// FormatTimestamp renders ts as ISO-8601 with an explicit offset.
func FormatTimestamp(ts time.Time) string {
	return ts.Format("2006-01-02T15:04:05-07:00")
}

func copyKV(kv map[string]string) map[string]string {
	out := make(map[string]string, len(kv))
	for k, v := range kv {
		out[k] = v
	}
	return out
}

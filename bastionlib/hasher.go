package bastionlib

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

// unknownIdentity is what every empty or unparseable input normalizes to.
// Отсутствие идентифицирующих данных — это тоже стабильный bucket: все
// "безымянные" клиенты попадают в один пул и делят одну квоту, вместо
// того чтобы ронять pipeline.
const unknownIdentity = "unknown"

// hashShortLen — длина усечённого хэша для операторского вывода.
// 12 hex символов = 48 бит: достаточно для корреляции записей,
// восстановить исходный адрес нельзя.
const hashShortLen = 12

// uaVersionRx collapses version digits inside User-Agent strings. Chrome
// auto-updates every few weeks; without this every minor release would
// become a brand-new identity and inflate key cardinality.
var uaVersionRx = regexp.MustCompile(`\d+(?:[._]\d+)*`)

// Hasher produces deterministic, salted, one-way identifiers from raw
// client attributes (IP address, User-Agent). The same (raw, salt) pair
// always yields the same hash, so hashed identities remain usable as
// rate-limit and scoring keys while raw PII never leaves the request
// handler.
//
// Rotating a salt invalidates every identity derived from it. This is
// acceptable: hashes are privacy tokens, not stable IDs.
type Hasher struct {
	ipSalt []byte
	uaSalt []byte
}

// NewHasher builds a hasher from the two configured secrets.
func NewHasher(ipSalt, uaSalt string) *Hasher {
	return &Hasher{
		ipSalt: []byte(ipSalt),
		uaSalt: []byte(uaSalt),
	}
}

// HashIP hashes a raw remote address. The input is normalized first:
// the first entry of a comma-separated forwarded-for list is taken,
// ports and IPv6 brackets are stripped.
func (h *Hasher) HashIP(raw string) string {
	return hashIdentity(normalizeIP(raw), h.ipSalt)
}

// HashUserAgent hashes a raw User-Agent with version digits collapsed,
// preserving the browser/engine family.
func (h *Hasher) HashUserAgent(raw string) string {
	return hashIdentity(normalizeUserAgent(raw), h.uaSalt)
}

// HashShort returns an operator-friendly truncated form of a hash.
func HashShort(hash string) string {
	if len(hash) <= hashShortLen {
		return hash
	}

	return hash[:hashShortLen]
}

func hashIdentity(normalized string, salt []byte) string {
	mac := hmac.New(sha256.New, salt)
	mac.Write([]byte(normalized)) //nolint: errcheck

	return hex.EncodeToString(mac.Sum(nil))
}

func normalizeIP(raw string) string {
	raw = strings.TrimSpace(raw)

	// X-Forwarded-For: первый элемент списка — исходный клиент,
	// остальное дописали промежуточные прокси.
	if idx := strings.IndexByte(raw, ','); idx >= 0 {
		raw = strings.TrimSpace(raw[:idx])
	}

	raw = stripPort(raw)

	if raw == "" {
		return unknownIdentity
	}

	return raw
}

// stripPort removes a trailing :port and IPv6 brackets. net.SplitHostPort
// is not used here: it errors out on bare addresses, and we want bare
// addresses to pass through untouched.
func stripPort(addr string) string {
	if strings.HasPrefix(addr, "[") {
		// "[::1]:8080" или "[::1]"
		if end := strings.IndexByte(addr, ']'); end >= 0 {
			return addr[1:end]
		}

		return strings.Trim(addr, "[]")
	}

	// Для IPv4 "1.2.3.4:80" отрезаем порт. Двоеточий больше одного —
	// значит это IPv6 без скобок, трогать нельзя.
	if strings.Count(addr, ":") == 1 {
		if idx := strings.IndexByte(addr, ':'); idx >= 0 {
			return addr[:idx]
		}
	}

	return addr
}

func normalizeUserAgent(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return unknownIdentity
	}

	return uaVersionRx.ReplaceAllString(raw, "#")
}

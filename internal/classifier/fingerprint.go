package classifier

import (
	"encoding/binary"
	"encoding/hex"
	"hash"
	"strconv"

	"golang.org/x/crypto/blake2b"

	"github.com/sydlexius/artpersona/internal/artist"
)

// fingerprintVersion is mixed into every fingerprint. Bump it when scoring
// rules change so stored profiles are recomputed.
const fingerprintVersion = "apt-rules-2"

// Fingerprint returns a BLAKE2b-256 digest over the fields of rec that feed
// classification. Two records with equal fingerprints classify identically.
func Fingerprint(rec *artist.Record) string {
	h, _ := blake2b.New256(nil) // only errors on an oversized key
	writeField(h, fingerprintVersion)
	writeField(h, rec.Name)
	writeField(h, rec.Nationality)
	writeField(h, rec.Era)
	writeField(h, strconv.Itoa(rec.BirthYear))
	writeField(h, strconv.Itoa(rec.DeathYear))
	writeField(h, rec.Medium)
	for _, b := range rec.Biographies {
		writeField(h, b.Lang)
		writeField(h, b.Text)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// writeField length-prefixes s so adjacent fields cannot run together.
func writeField(h hash.Hash, s string) {
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], uint64(len(s)))
	h.Write(n[:])
	h.Write([]byte(s))
}

package patient

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// PersonHash is the pseudo-identifier of a national identifier: the
// lowercase hex SHA-256 of its bytes. It is unsalted so the same person
// always hashes to the same value.
func PersonHash(mbo string) string {
	sum := sha256.Sum256([]byte(mbo))
	return hex.EncodeToString(sum[:])
}

// AgeAt returns the age in whole years on the collection date, or nil when
// either date is unknown.
func AgeAt(birth, collection *time.Time) *int {
	if birth == nil || collection == nil {
		return nil
	}
	age := collection.Year() - birth.Year()
	if collection.Month() < birth.Month() ||
		(collection.Month() == birth.Month() && collection.Day() < birth.Day()) {
		age--
	}
	return &age
}

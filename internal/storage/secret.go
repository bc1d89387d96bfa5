package storage

import (
	"sync/atomic"

	"golang.org/x/crypto/bcrypt"

	"ssoengine/internal/domain/models"
)

// dummyHash is compared against for unknown principals so every lookup costs one bcrypt run
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("dummy-password"), bcrypt.DefaultCost)

var dummyComparisons atomic.Int64

// CompareDummy spends one bcrypt comparison when there is no real hash to check secret against
func CompareDummy(secret string) {
	dummyComparisons.Add(1)
	_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(secret))
}

// DummyComparisons reports how many times CompareDummy ran
func DummyComparisons() int64 {
	return dummyComparisons.Load()
}

// CheckClient applies the bcrypt secret comparison and the grant allow-list to a loaded client.
// A nil client is rejected after the same comparison cost as a wrong secret.
func CheckClient(client *models.Client, secret string, grant string) bool {
	if client == nil {
		if secret != "" {
			CompareDummy(secret)
		}
		return false
	}
	if !client.IsConfidential() {
		if secret != "" {
			CompareDummy(secret)
		}
		return grant == "" || client.AllowsGrant(grant)
	}
	if secret == "" {
		return false
	}
	ok := bcrypt.CompareHashAndPassword(client.SecretHash, []byte(secret)) == nil
	return ok && (grant == "" || client.AllowsGrant(grant))
}

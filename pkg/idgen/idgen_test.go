package idgen

import (
	"regexp"
	"strings"
	"sync"
	"testing"
	"unicode"
)

func TestNewID(t *testing.T) {
	if id := NewID(); len(id) != 20 {
		t.Fatalf("NewID() = %q, want a 20 character xid", id)
	}

	t.Run("unique", func(t *testing.T) {
		seen := make(map[string]bool)
		for range 1000 {
			id := NewID()
			if seen[id] {
				t.Fatalf("NewID() repeated %q", id)
			}
			seen[id] = true
		}
	})

	t.Run("lexicographically ordered", func(t *testing.T) {
		prev := ""
		for range 100 {
			id := NewID()
			if id <= prev {
				t.Fatalf("IDs out of order: %q after %q", id, prev)
			}
			prev = id
		}
	})

	t.Run("url safe", func(t *testing.T) {
		// xid encodes as lowercase base32.
		alphabet := regexp.MustCompile(`^[a-z0-9]{20}$`)
		for range 100 {
			if id := NewID(); !alphabet.MatchString(id) {
				t.Fatalf("NewID() = %q, want lowercase base32", id)
			}
		}
	})

	t.Run("safe for concurrent use", func(t *testing.T) {
		const goroutines, perGoroutine = 10, 100

		ids := make(chan string, goroutines*perGoroutine)
		var wg sync.WaitGroup
		for range goroutines {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for range perGoroutine {
					ids <- NewID()
				}
			}()
		}
		wg.Wait()
		close(ids)

		seen := make(map[string]bool)
		for id := range ids {
			if seen[id] {
				t.Fatalf("concurrent NewID() repeated %q", id)
			}
			seen[id] = true
		}
	})
}

func TestEntityIDs(t *testing.T) {
	generators := map[string]func() string{
		"review":     NewReviewID,
		"submission": NewSubmissionID,
		"request":    NewRequestID,
	}

	for name, generate := range generators {
		t.Run(name, func(t *testing.T) {
			seen := make(map[string]bool)
			for range 100 {
				id := generate()
				if len(id) != 20 {
					t.Fatalf("%s ID %q has length %d, want 20", name, id, len(id))
				}
				if seen[id] {
					t.Fatalf("%s ID %q repeated", name, id)
				}
				seen[id] = true
			}
		})
	}
}

func TestNewSecureSecret(t *testing.T) {
	t.Run("exact length", func(t *testing.T) {
		for _, length := range []int{0, 1, 8, 16, 32, 64, 128} {
			if secret := NewSecureSecret(length); len(secret) != length {
				t.Errorf("NewSecureSecret(%d) has length %d", length, len(secret))
			}
		}
	})

	t.Run("url safe alphabet", func(t *testing.T) {
		alphabet := regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
		for range 100 {
			if secret := NewSecureSecret(32); !alphabet.MatchString(secret) {
				t.Fatalf("NewSecureSecret(32) = %q, want URL-safe base64", secret)
			}
		}
	})

	t.Run("unique", func(t *testing.T) {
		seen := make(map[string]bool)
		for range 100 {
			secret := NewSecureSecret(32)
			if seen[secret] {
				t.Fatalf("NewSecureSecret(32) repeated %q", secret)
			}
			seen[secret] = true
		}
	})
}

func TestNewSecurePassword(t *testing.T) {
	// Every generated password must carry all four character classes; the
	// generator seeds one character per class before filling the rest.
	for range 200 {
		password := NewSecurePassword()
		if len(password) != passwordLength {
			t.Fatalf("password %q has length %d, want %d", password, len(password), passwordLength)
		}

		var upper, lower, digit, special bool
		for _, r := range password {
			switch {
			case unicode.IsUpper(r):
				upper = true
			case unicode.IsLower(r):
				lower = true
			case unicode.IsDigit(r):
				digit = true
			case strings.ContainsRune(passwordSpecial, r):
				special = true
			}
		}
		if !upper || !lower || !digit || !special {
			t.Fatalf("password %q is missing a required character class", password)
		}
	}

	t.Run("unique", func(t *testing.T) {
		seen := make(map[string]bool)
		for range 100 {
			password := NewSecurePassword()
			if seen[password] {
				t.Fatalf("NewSecurePassword() repeated %q", password)
			}
			seen[password] = true
		}
	})
}

func BenchmarkNewID(b *testing.B) {
	for b.Loop() {
		NewID()
	}
}

func BenchmarkNewSecureSecret(b *testing.B) {
	for b.Loop() {
		NewSecureSecret(32)
	}
}

func BenchmarkNewSecurePassword(b *testing.B) {
	for b.Loop() {
		NewSecurePassword()
	}
}

// Package cryptbind is the process-wide, lazily-initialized binding to
// the platform's crypt(3) library. It probes an ordered
// list of shared-library names, prefers the reentrant crypt_ra symbol,
// and falls back to the non-reentrant crypt symbol behind a mutex.
//
// Loading uses github.com/ebitengine/purego, which gives dlopen/dlsym
// equivalents without requiring cgo or a C compiler toolchain.
package cryptbind

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// LibraryNames is the ordered list of shared-library names probed for a
// crypt implementation. The first one that loads
// successfully is retained for the process's lifetime.
var LibraryNames = []string{
	"libxcrypt.so.2",
	"libxcrypt.so.1",
	"libxcrypt.so.0",
	"libcrypt.so.2",
	"libcrypt.so.1",
	"libcrypt.so",
	"libc.so.6",
}

// ErrNoCryptFunction is returned when neither crypt_ra nor crypt
// resolves in any probed library.
var ErrNoCryptFunction = fmt.Errorf("cryptbind: no crypt function found in any of %v", LibraryNames)

// absentSentinel is the value CryptWrap returns for candidate/setting
// pairs the library rejects (a null C-string return).
const absentSentinel = ""

// Scratch is a slot's private crypt_ra scratch buffer: an opaque
// pointer+size pair the library allocates and resizes on our behalf.
// It is used exclusively by one goroutine (normally one persistent
// worker-pool slot) and is never copied or shared; its
// underlying C allocation is freed only at process exit, never by Go
// code.
type Scratch struct {
	data uintptr
	size int32
}

// NewScratch allocates a zero-valued Scratch. Pass one per worker-pool
// slot to Binding.CryptWrap; never share a Scratch between goroutines.
func NewScratch() *Scratch { return &Scratch{} }

// Binding is the process-wide crypt(3) entry point. Obtain the single
// instance with Load; it is safe to call CryptWrap from any goroutine
// as long as each goroutine supplies its own Scratch.
type Binding struct {
	libraryName  string
	hasReentrant bool

	// fallback mutex: serializes all calls to the non-reentrant crypt
	// symbol
	fallbackMu sync.Mutex

	cryptRa  cryptRaFunc
	cryptOne cryptFunc
}

// cryptRaFunc mirrors crypt_ra(key, setting, **data, *size) -> char*.
type cryptRaFunc func(key, setting string, data *uintptr, size *int32) string

// cryptFunc mirrors the non-reentrant crypt(key, setting) -> char*.
type cryptFunc func(key, setting string) string

var (
	loadOnce    sync.Once
	loadBinding *Binding
	loadErr     error
)

// Load lazily loads and caches the process-wide Binding. Subsequent
// calls return the same instance (or the same error) without probing
// again.
func Load() (*Binding, error) {
	loadOnce.Do(func() {
		loadBinding, loadErr = probe()
		if loadErr != nil {
			logrus.WithError(loadErr).Error("cryptbind: failed to load a crypt implementation")
			return
		}
		logrus.WithFields(logrus.Fields{
			"library":   loadBinding.libraryName,
			"reentrant": loadBinding.hasReentrant,
		}).Info("cryptbind: loaded crypt implementation")
	})
	return loadBinding, loadErr
}

// CryptWrap verifies candidate against setting and returns the crypt
// library's output string, or ok=false if the library returned a null
// result. An empty or nil setting always yields ok=false without
// invoking the library.
//
// scratch must be private to the calling goroutine when the reentrant
// path is used; see Scratch's documentation.
func (b *Binding) CryptWrap(candidate, setting string, scratch *Scratch) (string, bool, error) {
	if setting == "" {
		return absentSentinel, false, nil
	}

	var result string
	if b.hasReentrant {
		result = b.cryptRa(candidate, setting, &scratch.data, &scratch.size)
	} else {
		b.fallbackMu.Lock()
		result = b.cryptOne(candidate, setting)
		b.fallbackMu.Unlock()
	}

	if result == absentSentinel {
		return absentSentinel, false, nil
	}
	return result, true, nil
}

// HasReentrant reports whether the loaded library exposed crypt_ra
// (true) or only the non-reentrant crypt (false).
func (b *Binding) HasReentrant() bool { return b.hasReentrant }

// LibraryName reports which of LibraryNames was loaded.
func (b *Binding) LibraryName() string { return b.libraryName }

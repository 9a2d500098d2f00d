//go:build !windows

package cryptbind

import (
	"github.com/ebitengine/purego"
)

// probe walks LibraryNames in order, dlopen-ing each until one
// succeeds, then resolves crypt_ra (preferred) or crypt (fallback).
// Neither symbol resolving in any library is ErrNoCryptFunction.
func probe() (*Binding, error) {
	for _, name := range LibraryNames {
		handle, err := purego.Dlopen(name, purego.RTLD_NOW|purego.RTLD_GLOBAL)
		if err != nil {
			continue
		}

		b := &Binding{libraryName: name}

		if sym, err := purego.Dlsym(handle, "crypt_ra"); err == nil && sym != 0 {
			purego.RegisterLibFunc(&b.cryptRa, handle, "crypt_ra")
			b.hasReentrant = true
			return b, nil
		}

		if sym, err := purego.Dlsym(handle, "crypt"); err == nil && sym != 0 {
			purego.RegisterLibFunc(&b.cryptOne, handle, "crypt")
			b.hasReentrant = false
			return b, nil
		}

		// This library loaded but exposes neither symbol; keep probing
		// the rest of the ordered list.
	}

	return nil, ErrNoCryptFunction
}

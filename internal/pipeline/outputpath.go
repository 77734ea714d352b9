package pipeline

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
)

// OutputPath returns the destination for src. With an empty outputDir the
// file is rewritten in place; otherwise it lands at
// outputDir/<root name>/<relative path>. The extension is replaced by ext
// when it differs, so a PNG in place becomes a sibling .webp.
func OutputPath(src Source, outputDir, ext string) string {
	dest := src.Path
	if outputDir != "" {
		dest = filepath.Join(outputDir, filepath.Base(src.Root), src.Rel)
	}
	if cur := filepath.Ext(dest); !strings.EqualFold(cur, ext) {
		dest = strings.TrimSuffix(dest, cur) + ext
	}
	return dest
}

// CollisionResolver tracks destination paths claimed by sources and resolves
// duplicates by appending " - dupN" suffixes. All methods are goroutine-safe.
type CollisionResolver struct {
	mu       sync.Mutex
	owners   map[string]string // destination -> source that owns it
	counters map[string]int    // requested destination -> next dup counter
}

// NewCollisionResolver creates a ready-to-use resolver.
func NewCollisionResolver() *CollisionResolver {
	return &CollisionResolver{
		owners:   make(map[string]string),
		counters: make(map[string]int),
	}
}

// Claim reserves path for owner without resolving. Sources rewritten in
// place claim their own path up front so no other file is mapped onto them.
func (cr *CollisionResolver) Claim(owner, path string) {
	cr.mu.Lock()
	defer cr.mu.Unlock()
	if _, ok := cr.owners[path]; !ok {
		cr.owners[path] = owner
	}
}

// Resolve returns the final destination for input. If requested is unclaimed
// (or already owned by input) it is returned as-is; otherwise a " - dupN"
// variant is generated.
func (cr *CollisionResolver) Resolve(input, requested string) string {
	cr.mu.Lock()
	defer cr.mu.Unlock()

	owner, exists := cr.owners[requested]
	if !exists || owner == input {
		cr.owners[requested] = input
		return requested
	}

	dir := filepath.Dir(requested)
	base := filepath.Base(requested)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)

	counter := cr.counters[requested]
	if counter == 0 {
		counter = 1
	}
	for {
		candidate := filepath.Join(dir, fmt.Sprintf("%s - dup%d%s", stem, counter, ext))
		cOwner, cExists := cr.owners[candidate]
		if !cExists || cOwner == input {
			cr.counters[requested] = counter + 1
			cr.owners[candidate] = input
			return candidate
		}
		counter++
	}
}

// Package chunk splits ordered sequences into fixed-size contiguous windows.
package chunk

import (
	"errors"
	"iter"
)

var ErrInvalidSize = errors.New("chunk size must be positive")

// Count returns how many chunks Seq yields for n items: ceil(n/size).
func Count(n, size int) int {
	if n <= 0 || size <= 0 {
		return 0
	}
	return (n + size - 1) / size
}

// Seq lazily yields (index, chunk) pairs in input order. Chunks alias items.
// Every chunk holds size items except possibly the last. A non-positive
// size yields nothing.
func Seq[T any](items []T, size int) iter.Seq2[int, []T] {
	return func(yield func(int, []T) bool) {
		if size <= 0 {
			return
		}
		for i, start := 0, 0; start < len(items); i, start = i+1, start+size {
			end := min(start+size, len(items))
			if !yield(i, items[start:end:end]) {
				return
			}
		}
	}
}

// Split is the eager form of Seq.
func Split[T any](items []T, size int) ([][]T, error) {
	if size <= 0 {
		return nil, ErrInvalidSize
	}
	out := make([][]T, 0, Count(len(items), size))
	for _, c := range Seq(items, size) {
		out = append(out, c)
	}
	return out, nil
}

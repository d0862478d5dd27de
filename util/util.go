package util

import (
	"os"

	"github.com/pkg/errors"
	"golang.org/x/exp/constraints"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, 0777); err != nil {
		return errors.Wrapf(err, "could not create %v", dir)
	}
	return nil
}

func GetKeys[A constraints.Ordered, B any](m map[A]B) []A {
	return maps.Keys(m)
}

func SortedKeys[A constraints.Ordered, B any](m map[A]B) []A {
	keys := maps.Keys(m)
	slices.Sort(keys)
	return keys
}

func Clamp[A constraints.Integer](num, lo, hi A) A {
	if num < lo {
		return lo
	}
	if num > hi {
		return hi
	}
	return num
}

func Min[A constraints.Integer](num1 A, num2 A) A {
	if num1 > num2 {
		return num2
	}
	return num1
}

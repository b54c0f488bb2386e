package domain

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLatestObjectIsDeterministic(t *testing.T) {
	paths := []string{
		"sales/a-sales/sales_20240101_0900.csv",
		"sales/a-sales/sales_20240301_100000_000000001.csv",
		"sales/a-sales/notes.txt",
		"sales/a-sales/manual.csv",
		"sales/a-sales/sales_20240301_100000_000000000.csv",
		"sales/a-sales/sales_20240215_120000_500000000.csv",
	}

	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 20; i++ {
		shuffled := append([]string(nil), paths...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })

		latest, ok := LatestObject(shuffled)
		assert.True(t, ok)
		assert.Equal(t, "sales/a-sales/sales_20240301_100000_000000001.csv", latest)
	}
}

func TestSortNewestFirstPutsUntimedLast(t *testing.T) {
	got := SortNewestFirst([]string{
		"x/b.csv",
		"x/sales_20240101_0900.csv",
		"x/a.csv",
		"x/sales_20240101_090000_000000000.csv",
	})

	assert.Equal(t, []string{
		"x/sales_20240101_090000_000000000.csv",
		"x/sales_20240101_0900.csv",
		"x/b.csv",
		"x/a.csv",
	}, got)
}

func TestLatestObjectEmpty(t *testing.T) {
	_, ok := LatestObject([]string{"a.txt"})
	assert.False(t, ok)
}

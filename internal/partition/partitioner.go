package partition

import (
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"github.com/gosimple/slug"
	"github.com/restorehq/restore/internal/clock"
	"github.com/restorehq/restore/internal/tabular"
)

// Partitioner assigns every row of an upload to exactly one partition.
type Partitioner struct {
	clock clock.Clock

	mu       sync.Mutex
	lastName time.Time
}

func New(clk clock.Clock) *Partitioner {
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Partitioner{clock: clk}
}

func (p *Partitioner) Split(customerID string, kind Kind, table *tabular.Table) ([]Partition, error) {
	if table == nil {
		return nil, nil
	}
	if err := ValidateColumns(kind, table.Columns); err != nil {
		return nil, err
	}

	switch kind {
	case KindDemand:
		return p.splitDemand(customerID, table), nil
	case KindSales:
		return []Partition{p.splitSales(customerID, table)}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}
}

func (p *Partitioner) splitDemand(customerID string, table *tabular.Table) []Partition {
	index := map[string]int{}
	var parts []Partition
	for _, row := range table.Rows {
		key := row[DemandKeyColumn]
		i, ok := index[key]
		if !ok {
			i = len(parts)
			index[key] = i
			parts = append(parts, Partition{
				Kind:     KindDemand,
				GroupKey: key,
				Columns:  table.Columns,
			})
		}
		parts[i].Rows = append(parts[i].Rows, row)
	}

	used := make(map[string]string, len(parts))
	for i := range parts {
		name := demandName(parts[i].GroupKey)
		if owner, taken := used[name]; taken && owner != parts[i].GroupKey {
			name = fmt.Sprintf("%s-%08x", name, hashKey(parts[i].GroupKey))
		}
		used[name] = parts[i].GroupKey
		parts[i].Name = name
		parts[i].StoragePath = StoragePath(KindDemand, customerID, name)
	}
	return parts
}

func demandName(key string) string {
	s := slug.Make(key)
	if s == "" {
		return fmt.Sprintf("product_%08x", hashKey(key))
	}
	return "product_" + s
}

func hashKey(key string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(strings.TrimSpace(key)))
	return h.Sum32()
}

func (p *Partitioner) splitSales(customerID string, table *tabular.Table) Partition {
	name := SalesName(p.nextSalesTime())
	return Partition{
		Name:        name,
		Kind:        KindSales,
		Columns:     table.Columns,
		Rows:        table.Rows,
		StoragePath: StoragePath(KindSales, customerID, name),
	}
}

// nextSalesTime never returns the same instant twice in this process, so
// back-to-back uploads cannot overwrite each other.
func (p *Partitioner) nextSalesTime() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.clock.Now().UTC()
	if !now.After(p.lastName) {
		now = p.lastName.Add(time.Nanosecond)
	}
	p.lastName = now
	return now
}

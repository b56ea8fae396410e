package bloodunit

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bloodlink/bloodlink/internal/domain/bloodgroup"
	"github.com/bloodlink/bloodlink/internal/platform/apperr"
)

// memStore is an in-memory Repository, TxRunner and Sequencer. WithTx
// serializes transactions, snapshots all state and restores it when fn
// fails. Reads outside WithTx are unsynchronized and only safe from a
// single goroutine.
//
// It also tracks inventory locks per transaction: a unit or inventory write
// on a group that the current transaction has not locked is recorded in
// unlockedWrites.
type memStore struct {
	mu        sync.Mutex
	units     map[string]*BloodUnit
	inventory map[bloodgroup.Group]int
	donors    map[int]string
	patients  map[string]string
	seq       map[string]int

	locked         map[bloodgroup.Group]bool
	lockCalls      [][]bloodgroup.Group
	unlockedWrites []string

	failRecompute error
}

func newMemStore() *memStore {
	m := &memStore{
		units:     make(map[string]*BloodUnit),
		inventory: make(map[bloodgroup.Group]int),
		donors:    make(map[int]string),
		patients:  make(map[string]string),
		seq:       make(map[string]int),
	}
	for _, g := range bloodgroup.All {
		m.inventory[g] = 0
	}
	return m
}

type memSnapshot struct {
	units     map[string]BloodUnit
	inventory map[bloodgroup.Group]int
	seq       map[string]int
}

func (m *memStore) snapshot() memSnapshot {
	s := memSnapshot{
		units:     make(map[string]BloodUnit, len(m.units)),
		inventory: make(map[bloodgroup.Group]int, len(m.inventory)),
		seq:       make(map[string]int, len(m.seq)),
	}
	for k, u := range m.units {
		s.units[k] = *u
	}
	for k, v := range m.inventory {
		s.inventory[k] = v
	}
	for k, v := range m.seq {
		s.seq[k] = v
	}
	return s
}

func (m *memStore) restore(s memSnapshot) {
	m.units = make(map[string]*BloodUnit, len(s.units))
	for k, u := range s.units {
		u := u
		m.units[k] = &u
	}
	m.inventory = s.inventory
	m.seq = s.seq
}

func (m *memStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.locked = make(map[bloodgroup.Group]bool)
	defer func() { m.locked = nil }()
	snap := m.snapshot()
	if err := fn(ctx); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

func (m *memStore) Next(_ context.Context, scope string) (int, error) {
	m.seq[scope]++
	return m.seq[scope], nil
}

func (m *memStore) LockInventory(_ context.Context, groups []bloodgroup.Group) error {
	m.lockCalls = append(m.lockCalls, append([]bloodgroup.Group(nil), groups...))
	for _, g := range groups {
		if m.locked != nil {
			m.locked[g] = true
		}
		if _, ok := m.inventory[g]; !ok {
			m.inventory[g] = 0
		}
	}
	return nil
}

func (m *memStore) checkLocked(op string, g bloodgroup.Group) {
	if !m.locked[g] {
		m.unlockedWrites = append(m.unlockedWrites, op+" "+string(g))
	}
}

func copyUnit(u *BloodUnit) *BloodUnit {
	c := *u
	return &c
}

func (m *memStore) Create(_ context.Context, u *BloodUnit) error {
	if _, ok := m.units[u.ID]; ok {
		return apperr.Conflict("blood unit already exists")
	}
	m.checkLocked("create", u.BloodGroup)
	u.CreatedAt = time.Now()
	u.UpdatedAt = u.CreatedAt
	m.units[u.ID] = copyUnit(u)
	return nil
}

func (m *memStore) get(id string) (*BloodUnit, error) {
	u, ok := m.units[id]
	if !ok {
		return nil, apperr.NotFound("blood unit")
	}
	return copyUnit(u), nil
}

func (m *memStore) GetByID(_ context.Context, id string) (*BloodUnit, error) {
	return m.get(id)
}

func (m *memStore) GetForUpdate(_ context.Context, id string) (*BloodUnit, error) {
	return m.get(id)
}

func (m *memStore) Update(_ context.Context, u *BloodUnit) (bool, error) {
	cur, ok := m.units[u.ID]
	if !ok || cur.Status != StatusAvailable {
		return false, nil
	}
	m.checkLocked("update", cur.BloodGroup)
	m.checkLocked("update", u.BloodGroup)
	cur.BloodGroup = u.BloodGroup
	cur.DonationDate = u.DonationDate
	cur.ExpiryDate = u.ExpiryDate
	cur.UpdatedAt = time.Now()
	return true, nil
}

func (m *memStore) MarkIssued(_ context.Context, id, patientID string) (bool, error) {
	cur, ok := m.units[id]
	if !ok || cur.Status != StatusAvailable {
		return false, nil
	}
	m.checkLocked("issue", cur.BloodGroup)
	cur.Status = StatusIssued
	p := patientID
	cur.PatientID = &p
	return true, nil
}

func (m *memStore) ExpireBefore(_ context.Context, day time.Time) ([]*BloodUnit, error) {
	var out []*BloodUnit
	for _, u := range m.units {
		if u.Status == StatusAvailable && u.ExpiryDate.Before(day) {
			m.checkLocked("expire", u.BloodGroup)
			u.Status = StatusExpired
			out = append(out, copyUnit(u))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) Delete(_ context.Context, id string) error {
	u, ok := m.units[id]
	if !ok {
		return apperr.NotFound("blood unit")
	}
	m.checkLocked("delete", u.BloodGroup)
	delete(m.units, id)
	return nil
}

func (m *memStore) view(u *BloodUnit) *UnitView {
	v := &UnitView{BloodUnit: *u}
	if u.DonorID != nil {
		if name, ok := m.donors[*u.DonorID]; ok {
			v.DonorName = &name
		}
	}
	if u.PatientID != nil {
		if name, ok := m.patients[*u.PatientID]; ok {
			v.PatientName = &name
		}
	}
	return v
}

func (m *memStore) List(_ context.Context) ([]*UnitView, error) {
	var out []*UnitView
	for _, u := range m.units {
		out = append(out, m.view(u))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DonationDate.After(out[j].DonationDate) })
	return out, nil
}

func (m *memStore) Filter(ctx context.Context, f Filter, limit, offset int) ([]*UnitView, int, error) {
	all, _ := m.List(ctx)
	var matched []*UnitView
	for _, v := range all {
		if f.BloodGroup != "" && v.BloodGroup != f.BloodGroup {
			continue
		}
		if f.Status != "" && v.Status != f.Status {
			continue
		}
		if f.DonorName != "" && (v.DonorName == nil || !strings.Contains(strings.ToLower(*v.DonorName), strings.ToLower(f.DonorName))) {
			continue
		}
		matched = append(matched, v)
	}
	total := len(matched)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

func (m *memStore) ListExpiringBetween(_ context.Context, from, to time.Time) ([]*UnitView, error) {
	var out []*UnitView
	for _, u := range m.units {
		if u.Status == StatusAvailable && !u.ExpiryDate.Before(from) && !u.ExpiryDate.After(to) {
			out = append(out, m.view(u))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiryDate.Before(out[j].ExpiryDate) })
	return out, nil
}

func (m *memStore) RecomputeInventory(_ context.Context, groups []bloodgroup.Group) ([]InventoryRow, error) {
	if m.failRecompute != nil {
		return nil, m.failRecompute
	}
	var rows []InventoryRow
	for _, g := range groups {
		m.checkLocked("recompute", g)
		m.inventory[g] = m.countAvailable(g)
		rows = append(rows, InventoryRow{BloodGroup: g, TotalQuantity: m.inventory[g], UpdatedAt: time.Now()})
	}
	return rows, nil
}

func (m *memStore) Inventory(_ context.Context) ([]InventoryRow, error) {
	var rows []InventoryRow
	for g, n := range m.inventory {
		rows = append(rows, InventoryRow{BloodGroup: g, TotalQuantity: n})
	}
	return rows, nil
}

func (m *memStore) DonorExists(_ context.Context, id int) (bool, error) {
	_, ok := m.donors[id]
	return ok, nil
}

func (m *memStore) PatientExists(_ context.Context, id string) (bool, error) {
	_, ok := m.patients[id]
	return ok, nil
}

func (m *memStore) countAvailable(g bloodgroup.Group) int {
	n := 0
	for _, u := range m.units {
		if u.BloodGroup == g && u.Status == StatusAvailable {
			n++
		}
	}
	return n
}

package bloodunit

import (
	"context"
	"errors"
	"math/rand"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/bloodlink/bloodlink/internal/domain/bloodgroup"
	"github.com/bloodlink/bloodlink/internal/platform/apperr"
	"github.com/bloodlink/bloodlink/internal/platform/events"
)

var testNow = time.Date(2024, 6, 15, 10, 30, 0, 0, time.UTC)

type fakeMetrics struct {
	mu        sync.Mutex
	created   map[string]int
	issued    map[string]int
	expired   map[string]int
	inventory map[string]int
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{
		created:   map[string]int{},
		issued:    map[string]int{},
		expired:   map[string]int{},
		inventory: map[string]int{},
	}
}

func (f *fakeMetrics) UnitCreated(g string) { f.mu.Lock(); f.created[g]++; f.mu.Unlock() }
func (f *fakeMetrics) UnitIssued(g string)  { f.mu.Lock(); f.issued[g]++; f.mu.Unlock() }
func (f *fakeMetrics) UnitsExpired(g string, n int) {
	f.mu.Lock()
	f.expired[g] += n
	f.mu.Unlock()
}
func (f *fakeMetrics) SetInventory(g string, n int) { f.mu.Lock(); f.inventory[g] = n; f.mu.Unlock() }

type fixture struct {
	svc      *Service
	store    *memStore
	recorder *events.Recorder
	metrics  *fakeMetrics
	ctx      context.Context
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := newMemStore()
	svc := NewService(store, store, store, zerolog.Nop(), Config{
		NearExpiryDays:    7,
		CriticalThreshold: 2,
		Location:          time.UTC,
	})
	svc.SetClock(func() time.Time { return testNow })
	rec := &events.Recorder{}
	svc.SetPublisher(rec)
	m := newFakeMetrics()
	svc.SetMetrics(m)

	store.donors[1] = "Asha Rao"
	store.donors[2] = "Ben Okafor"
	store.patients["PAT0001"] = "Chen Li"
	store.patients["PAT0002"] = "Dana Ruiz"

	return &fixture{svc: svc, store: store, recorder: rec, metrics: m, ctx: context.Background()}
}

func day(offset int) string {
	return DateOf(testNow).AddDate(0, 0, offset).Format("2006-01-02")
}

func intPtr(v int) *int { return &v }

func (f *fixture) createUnit(t *testing.T, group string, donation, expiry int) *BloodUnit {
	t.Helper()
	u, err := f.svc.CreateUnit(f.ctx, Input{BloodGroup: group, DonationDate: day(donation), ExpiryDate: day(expiry)})
	if err != nil {
		t.Fatalf("create %s unit: %v", group, err)
	}
	return u
}

func mustNoErr(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func wantKind(t *testing.T, err error, kind apperr.Kind) {
	t.Helper()
	if err == nil {
		t.Errorf("expected %v error, got nil", kind)
		return
	}
	if got := apperr.KindOf(err); got != kind {
		t.Errorf("expected %v, got %v (%v)", kind, got, err)
	}
}

func wantInventory(t *testing.T, store *memStore, g bloodgroup.Group, want int) {
	t.Helper()
	if got := store.inventory[g]; got != want {
		t.Errorf("inventory %s: expected %d, got %d", g, want, got)
	}
}

// assertInvariants checks the properties every mutation must preserve:
// inventory matches the Available count, only Issued units carry a patient
// and no unit or inventory write happened without the group's lock.
func assertInvariants(t *testing.T, store *memStore) {
	t.Helper()
	for _, g := range bloodgroup.All {
		if got, want := store.inventory[g], store.countAvailable(g); got != want {
			t.Errorf("inventory for %s: stored %d, available %d", g, got, want)
		}
	}
	for id, u := range store.units {
		switch u.Status {
		case StatusIssued:
			if u.PatientID == nil {
				t.Errorf("issued unit %s must have a patient", id)
			}
		default:
			if u.PatientID != nil {
				t.Errorf("%s unit %s must not have a patient", u.Status, id)
			}
		}
	}
	if len(store.unlockedWrites) > 0 {
		t.Errorf("writes without the inventory lock: %v", store.unlockedWrites)
	}
}

func TestCreateUnit_AssignsSequentialIDs(t *testing.T) {
	f := newFixture(t)

	u1 := f.createUnit(t, "O+", 0, 30)
	u2 := f.createUnit(t, "A-", -1, 20)

	if u1.ID != "BU20240001" || u2.ID != "BU20240002" {
		t.Errorf("expected BU20240001 and BU20240002, got %s and %s", u1.ID, u2.ID)
	}
	if u1.Status != StatusAvailable {
		t.Errorf("expected Available, got %s", u1.Status)
	}
	wantInventory(t, f.store, bloodgroup.OPos, 1)
	wantInventory(t, f.store, bloodgroup.ANeg, 1)
	assertInvariants(t, f.store)
}

func TestCreateUnit_SequenceIsPerYear(t *testing.T) {
	f := newFixture(t)
	f.createUnit(t, "O+", 0, 30)

	f.svc.SetClock(func() time.Time { return time.Date(2025, 1, 2, 9, 0, 0, 0, time.UTC) })
	u, err := f.svc.CreateUnit(f.ctx, Input{BloodGroup: "O+", DonationDate: "2025-01-02", ExpiryDate: "2025-02-01"})
	mustNoErr(t, err)
	if u.ID != "BU20250001" {
		t.Errorf("expected BU20250001, got %s", u.ID)
	}
}

func TestCreateUnit_Validation(t *testing.T) {
	tests := []struct {
		name string
		in   Input
		kind apperr.Kind
	}{
		{"expiry equals donation", Input{BloodGroup: "O+", DonationDate: day(0), ExpiryDate: day(0)}, apperr.KindValidation},
		{"expiry before donation", Input{BloodGroup: "O+", DonationDate: day(0), ExpiryDate: day(-3)}, apperr.KindValidation},
		{"bad group", Input{BloodGroup: "Z+", DonationDate: day(0), ExpiryDate: day(30)}, apperr.KindValidation},
		{"missing date", Input{BloodGroup: "O+", ExpiryDate: day(30)}, apperr.KindValidation},
		{"malformed date", Input{BloodGroup: "O+", DonationDate: "15/06/2024", ExpiryDate: day(30)}, apperr.KindValidation},
		{"unknown donor", Input{BloodGroup: "O+", DonationDate: day(0), ExpiryDate: day(30), DonorID: intPtr(99)}, apperr.KindNotFound},
		{"non-positive donor", Input{BloodGroup: "O+", DonationDate: day(0), ExpiryDate: day(30), DonorID: intPtr(0)}, apperr.KindValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.svc.CreateUnit(f.ctx, tt.in)
			wantKind(t, err, tt.kind)
			if len(f.store.units) != 0 {
				t.Errorf("expected no units, got %d", len(f.store.units))
			}
			if len(f.store.seq) != 0 {
				t.Errorf("a failed create must not consume an id: %v", f.store.seq)
			}
			if n := len(f.recorder.Events()); n != 0 {
				t.Errorf("expected no events, got %d", n)
			}
		})
	}
}

func TestCreateUnit_WithDonorAndUnicodeMinus(t *testing.T) {
	f := newFixture(t)
	u, err := f.svc.CreateUnit(f.ctx, Input{BloodGroup: "AB−", DonationDate: day(0), ExpiryDate: day(35), DonorID: intPtr(1)})
	mustNoErr(t, err)
	if u.BloodGroup != bloodgroup.ABNeg {
		t.Errorf("expected AB-, got %s", u.BloodGroup)
	}
	if u.DonorID == nil || *u.DonorID != 1 {
		t.Errorf("expected donor 1, got %v", u.DonorID)
	}
}

func TestCreateUnit_RollsBackWhenRecomputeFails(t *testing.T) {
	f := newFixture(t)
	f.store.failRecompute = errors.New("inventory write failed")

	_, err := f.svc.CreateUnit(f.ctx, Input{BloodGroup: "O+", DonationDate: day(0), ExpiryDate: day(30)})
	if err == nil {
		t.Fatal("expected error")
	}

	if len(f.store.units) != 0 {
		t.Error("unit insert must roll back with the aggregate")
	}
	if len(f.store.seq) != 0 {
		t.Errorf("sequence must roll back, got %v", f.store.seq)
	}
	if n := len(f.recorder.Events()); n != 0 {
		t.Errorf("nothing is published for a rolled back transaction, got %d events", n)
	}
	assertInvariants(t, f.store)
}

func TestScenario_CreateThenIssue(t *testing.T) {
	f := newFixture(t)

	before := f.store.inventory[bloodgroup.OPos]
	u1, err := f.svc.CreateUnit(f.ctx, Input{BloodGroup: "O+", DonationDate: day(0), ExpiryDate: day(30), DonorID: intPtr(1)})
	mustNoErr(t, err)
	wantInventory(t, f.store, bloodgroup.OPos, before+1)

	issued, err := f.svc.Issue(f.ctx, u1.ID, "PAT0001")
	mustNoErr(t, err)
	if issued.Status != StatusIssued {
		t.Errorf("expected Issued, got %s", issued.Status)
	}

	stored := f.store.units[u1.ID]
	if stored.Status != StatusIssued {
		t.Errorf("stored status: expected Issued, got %s", stored.Status)
	}
	if stored.PatientID == nil || *stored.PatientID != "PAT0001" {
		t.Errorf("expected patient PAT0001, got %v", stored.PatientID)
	}
	wantInventory(t, f.store, bloodgroup.OPos, before)
	assertInvariants(t, f.store)

	evts := f.recorder.Events()
	if len(evts) != 2 {
		t.Fatalf("expected 2 events, got %d", len(evts))
	}
	if evts[0].Type != events.TypeUnitCreated || evts[1].Type != events.TypeUnitIssued {
		t.Errorf("unexpected event types %s, %s", evts[0].Type, evts[1].Type)
	}
	if evts[1].PatientID != "PAT0001" {
		t.Errorf("expected issued event for PAT0001, got %q", evts[1].PatientID)
	}
	if f.metrics.issued["O+"] != 1 {
		t.Errorf("expected 1 issued metric, got %d", f.metrics.issued["O+"])
	}
	if f.metrics.inventory["O+"] != 0 {
		t.Errorf("expected inventory gauge 0, got %d", f.metrics.inventory["O+"])
	}
}

func TestIssue_NonAvailableFailsAndLeavesInventory(t *testing.T) {
	f := newFixture(t)
	u := f.createUnit(t, "B+", 0, 30)
	f.createUnit(t, "B+", 0, 30)
	_, err := f.svc.Issue(f.ctx, u.ID, "PAT0001")
	mustNoErr(t, err)

	before := f.store.inventory[bloodgroup.BPos]
	_, err = f.svc.Issue(f.ctx, u.ID, "PAT0002")
	wantKind(t, err, apperr.KindInvalidState)
	wantInventory(t, f.store, bloodgroup.BPos, before)
	if p := f.store.units[u.ID].PatientID; p == nil || *p != "PAT0001" {
		t.Errorf("patient must stay PAT0001, got %v", p)
	}
	assertInvariants(t, f.store)
}

func TestIssue_ExpiredUnit(t *testing.T) {
	f := newFixture(t)
	u := f.createUnit(t, "A+", -40, -1)
	_, err := f.svc.ExpirePass(f.ctx)
	mustNoErr(t, err)

	_, err = f.svc.Issue(f.ctx, u.ID, "PAT0001")
	wantKind(t, err, apperr.KindInvalidState)
	if st := f.store.units[u.ID].Status; st != StatusExpired {
		t.Errorf("expected Expired, got %s", st)
	}
}

func TestIssue_NotFound(t *testing.T) {
	f := newFixture(t)
	u := f.createUnit(t, "O-", 0, 30)

	_, err := f.svc.Issue(f.ctx, "BU20249999", "PAT0001")
	wantKind(t, err, apperr.KindNotFound)

	_, err = f.svc.Issue(f.ctx, u.ID, "PAT9999")
	wantKind(t, err, apperr.KindNotFound)
	if st := f.store.units[u.ID].Status; st != StatusAvailable {
		t.Errorf("expected Available, got %s", st)
	}
	wantInventory(t, f.store, bloodgroup.ONeg, 1)
}

func TestIssue_RequiresIDs(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Issue(f.ctx, " ", "PAT0001")
	wantKind(t, err, apperr.KindValidation)
}

func TestIssue_ConcurrentCallsSucceedOnce(t *testing.T) {
	f := newFixture(t)
	u := f.createUnit(t, "AB+", 0, 30)

	const workers = 8
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Issue(f.ctx, u.ID, "PAT0001")
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		wantKind(t, err, apperr.KindInvalidState)
	}
	if succeeded != 1 {
		t.Errorf("expected exactly one success, got %d", succeeded)
	}
	wantInventory(t, f.store, bloodgroup.ABPos, 0)
	assertInvariants(t, f.store)
}

// TestWrites_TakeInventoryLockFirst checks that every mutating operation
// locks the inventory rows of the groups it touches before it writes, so a
// concurrent recompute never commits a count from a stale snapshot.
func TestWrites_TakeInventoryLockFirst(t *testing.T) {
	f := newFixture(t)

	a := f.createUnit(t, "A+", 0, 30)
	b := f.createUnit(t, "B+", -40, -1)
	c := f.createUnit(t, "O-", 0, 30)
	_, err := f.svc.Issue(f.ctx, a.ID, "PAT0001")
	mustNoErr(t, err)
	_, err = f.svc.UpdateUnit(f.ctx, c.ID, Input{BloodGroup: "AB-", DonationDate: day(0), ExpiryDate: day(20)})
	mustNoErr(t, err)
	_, err = f.svc.ExpirePass(f.ctx)
	mustNoErr(t, err)
	mustNoErr(t, f.svc.DeleteUnit(f.ctx, b.ID))
	_, err = f.svc.Reconcile(f.ctx)
	mustNoErr(t, err)

	if len(f.store.unlockedWrites) > 0 {
		t.Fatalf("writes without the inventory lock: %v", f.store.unlockedWrites)
	}

	want := [][]bloodgroup.Group{
		{bloodgroup.APos},                   // create A+
		{bloodgroup.BPos},                   // create B+
		{bloodgroup.ONeg},                   // create O-
		{bloodgroup.APos},                   // issue
		{bloodgroup.ONeg, bloodgroup.ABNeg}, // update moves O- to AB-
		bloodgroup.All,                      // expiry sweep
		{bloodgroup.BPos},                   // delete
		bloodgroup.All,                      // reconcile
	}
	if !reflect.DeepEqual(f.store.lockCalls, want) {
		t.Errorf("lock calls:\n got %v\nwant %v", f.store.lockCalls, want)
	}
	assertInvariants(t, f.store)
}

func TestScenario_ExpirePassIsIdempotent(t *testing.T) {
	f := newFixture(t)
	u2 := f.createUnit(t, "A-", -35, -1)
	f.createUnit(t, "A-", 0, 30)
	wantInventory(t, f.store, bloodgroup.ANeg, 2)

	res, err := f.svc.ExpirePass(f.ctx)
	mustNoErr(t, err)
	if res.Expired != 1 {
		t.Errorf("expected 1 expired, got %d", res.Expired)
	}
	if !reflect.DeepEqual(res.Groups, []bloodgroup.Group{bloodgroup.ANeg}) {
		t.Errorf("expected groups [A-], got %v", res.Groups)
	}
	if st := f.store.units[u2.ID].Status; st != StatusExpired {
		t.Errorf("expected Expired, got %s", st)
	}
	wantInventory(t, f.store, bloodgroup.ANeg, 1)
	assertInvariants(t, f.store)

	snapshot := f.store.snapshot()
	res, err = f.svc.ExpirePass(f.ctx)
	mustNoErr(t, err)
	if res.Expired != 0 || len(res.Groups) != 0 {
		t.Errorf("second sweep expired %d units in %v", res.Expired, res.Groups)
	}
	if !reflect.DeepEqual(snapshot, f.store.snapshot()) {
		t.Error("second sweep must not change state")
	}
	if f.metrics.expired["A-"] != 1 {
		t.Errorf("expected 1 expired metric, got %d", f.metrics.expired["A-"])
	}
}

func TestExpirePass_NeverTouchesIssuedUnits(t *testing.T) {
	f := newFixture(t)
	u := f.createUnit(t, "O+", -10, 5)
	_, err := f.svc.Issue(f.ctx, u.ID, "PAT0002")
	mustNoErr(t, err)

	// Time passes beyond the issued unit's expiry date.
	f.svc.SetClock(func() time.Time { return testNow.AddDate(0, 0, 30) })
	res, err := f.svc.ExpirePass(f.ctx)
	mustNoErr(t, err)
	if res.Expired != 0 {
		t.Errorf("expected 0 expired, got %d", res.Expired)
	}
	if st := f.store.units[u.ID].Status; st != StatusIssued {
		t.Errorf("expected Issued, got %s", st)
	}
	assertInvariants(t, f.store)
}

func TestExpirePass_ExpiryTodayIsStillAvailable(t *testing.T) {
	f := newFixture(t)
	u := f.createUnit(t, "B-", -30, 0)

	res, err := f.svc.ExpirePass(f.ctx)
	mustNoErr(t, err)
	if res.Expired != 0 {
		t.Errorf("expected 0 expired, got %d", res.Expired)
	}
	if st := f.store.units[u.ID].Status; st != StatusAvailable {
		t.Errorf("expected Available, got %s", st)
	}
}

func TestGetNearExpiry_WindowAndOrder(t *testing.T) {
	f := newFixture(t)
	f.createUnit(t, "O+", -30, 8) // outside window
	u7 := f.createUnit(t, "O+", -30, 7)
	u0 := f.createUnit(t, "A+", -30, 0)
	u3 := f.createUnit(t, "B+", -30, 3)
	f.createUnit(t, "AB+", -30, -1) // already past, awaiting sweep
	issued := f.createUnit(t, "O-", -30, 1)
	_, err := f.svc.Issue(f.ctx, issued.ID, "PAT0001")
	mustNoErr(t, err)

	near, err := f.svc.GetNearExpiry(f.ctx, 7)
	mustNoErr(t, err)
	if len(near) != 3 {
		t.Fatalf("expected 3 near-expiry units, got %d", len(near))
	}

	want := []struct {
		id       string
		days     int
		severity Severity
	}{
		{u0.ID, 0, SeverityCritical},
		{u3.ID, 3, SeverityWarning},
		{u7.ID, 7, SeverityNotice},
	}
	for i, w := range want {
		n := near[i]
		if n.ID != w.id || n.DaysUntilExpiry != w.days || n.Severity != w.severity {
			t.Errorf("near[%d]: expected %s/%d/%s, got %s/%d/%s", i, w.id, w.days, w.severity, n.ID, n.DaysUntilExpiry, n.Severity)
		}
		if n.Status != StatusAvailable {
			t.Errorf("near[%d]: expected Available, got %s", i, n.Status)
		}
	}
}

func TestGetNearExpiry_NegativeWindow(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.GetNearExpiry(f.ctx, -1)
	wantKind(t, err, apperr.KindValidation)
}

func TestGetInventory_AllGroupsInOrder(t *testing.T) {
	f := newFixture(t)
	delete(f.store.inventory, bloodgroup.ONeg)
	f.createUnit(t, "O+", 0, 30)

	rows, err := f.svc.GetInventory(f.ctx)
	mustNoErr(t, err)
	if len(rows) != 8 {
		t.Fatalf("expected 8 rows, got %d", len(rows))
	}
	for i, g := range bloodgroup.All {
		if rows[i].BloodGroup != g {
			t.Errorf("row %d: expected %s, got %s", i, g, rows[i].BloodGroup)
		}
	}
	if n := rows[bloodgroup.ONeg.Order()].TotalQuantity; n != 0 {
		t.Errorf("O-: expected 0, got %d", n)
	}
	if n := rows[bloodgroup.OPos.Order()].TotalQuantity; n != 1 {
		t.Errorf("O+: expected 1, got %d", n)
	}
}

func TestGetCriticalGroups(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 3; i++ {
		f.createUnit(t, "O+", 0, 30)
	}
	for i := 0; i < 2; i++ {
		f.createUnit(t, "A+", 0, 30)
	}
	f.createUnit(t, "B+", 0, 30)

	rows, err := f.svc.GetCriticalGroups(f.ctx, 2)
	mustNoErr(t, err)

	var groups []bloodgroup.Group
	for i, r := range rows {
		if r.TotalQuantity > 2 {
			t.Errorf("%s has %d units, above the threshold", r.BloodGroup, r.TotalQuantity)
		}
		if i > 0 && rows[i-1].TotalQuantity > r.TotalQuantity {
			t.Errorf("rows not ordered by quantity at %d", i)
		}
		groups = append(groups, r.BloodGroup)
	}
	want := []bloodgroup.Group{
		bloodgroup.ANeg, bloodgroup.BNeg, bloodgroup.ABPos, bloodgroup.ABNeg, bloodgroup.ONeg,
		bloodgroup.BPos,
		bloodgroup.APos,
	}
	if !reflect.DeepEqual(groups, want) {
		t.Errorf("expected %v, got %v", want, groups)
	}

	_, err = f.svc.GetCriticalGroups(f.ctx, -1)
	wantKind(t, err, apperr.KindValidation)
}

func TestAlerts(t *testing.T) {
	f := newFixture(t)
	for _, g := range bloodgroup.All {
		for i := 0; i < 3; i++ {
			f.createUnit(t, string(g), -30, 30)
		}
	}
	f.createUnit(t, "O+", -30, 1)

	alerts, err := f.svc.Alerts(f.ctx)
	mustNoErr(t, err)
	if len(alerts.NearExpiry) != 1 {
		t.Errorf("expected 1 near-expiry alert, got %d", len(alerts.NearExpiry))
	}
	if alerts.CriticalInventory == nil {
		t.Error("empty critical list must render as []")
	}
	if len(alerts.CriticalInventory) != 0 {
		t.Errorf("expected no critical groups, got %v", alerts.CriticalInventory)
	}
	if alerts.AlertCount != 1 {
		t.Errorf("expected alert count 1, got %d", alerts.AlertCount)
	}
}

func TestUpdateUnit_ChangesGroupAndRecomputesBoth(t *testing.T) {
	f := newFixture(t)
	u := f.createUnit(t, "A+", 0, 30)

	updated, err := f.svc.UpdateUnit(f.ctx, u.ID, Input{BloodGroup: "B+", DonationDate: day(0), ExpiryDate: day(40)})
	mustNoErr(t, err)
	if updated.BloodGroup != bloodgroup.BPos {
		t.Errorf("expected B+, got %s", updated.BloodGroup)
	}
	wantInventory(t, f.store, bloodgroup.APos, 0)
	wantInventory(t, f.store, bloodgroup.BPos, 1)
	assertInvariants(t, f.store)
}

func TestUpdateUnit_Refusals(t *testing.T) {
	f := newFixture(t)
	withDonor, err := f.svc.CreateUnit(f.ctx, Input{BloodGroup: "O+", DonationDate: day(0), ExpiryDate: day(30), DonorID: intPtr(1)})
	mustNoErr(t, err)
	issued := f.createUnit(t, "O+", 0, 30)
	_, err = f.svc.Issue(f.ctx, issued.ID, "PAT0001")
	mustNoErr(t, err)

	_, err = f.svc.UpdateUnit(f.ctx, issued.ID, Input{BloodGroup: "O+", DonationDate: day(0), ExpiryDate: day(20)})
	wantKind(t, err, apperr.KindInvalidState)

	_, err = f.svc.UpdateUnit(f.ctx, withDonor.ID, Input{BloodGroup: "O+", DonationDate: day(0), ExpiryDate: day(20), DonorID: intPtr(2)})
	wantKind(t, err, apperr.KindValidation)

	_, err = f.svc.UpdateUnit(f.ctx, withDonor.ID, Input{BloodGroup: "O+", DonationDate: day(0), ExpiryDate: day(20), DonorID: intPtr(1)})
	if err != nil {
		t.Errorf("resending the same donor is not a change: %v", err)
	}

	_, err = f.svc.UpdateUnit(f.ctx, "BU20240404", Input{BloodGroup: "O+", DonationDate: day(0), ExpiryDate: day(20)})
	wantKind(t, err, apperr.KindNotFound)
	assertInvariants(t, f.store)
}

func TestDeleteUnit(t *testing.T) {
	f := newFixture(t)
	avail := f.createUnit(t, "AB-", 0, 30)
	issued := f.createUnit(t, "AB-", 0, 30)
	_, err := f.svc.Issue(f.ctx, issued.ID, "PAT0002")
	mustNoErr(t, err)

	mustNoErr(t, f.svc.DeleteUnit(f.ctx, issued.ID))
	wantInventory(t, f.store, bloodgroup.ABNeg, 1)

	mustNoErr(t, f.svc.DeleteUnit(f.ctx, avail.ID))
	wantInventory(t, f.store, bloodgroup.ABNeg, 0)
	if len(f.store.units) != 0 {
		t.Errorf("expected no units, got %d", len(f.store.units))
	}

	err = f.svc.DeleteUnit(f.ctx, avail.ID)
	wantKind(t, err, apperr.KindNotFound)

	evts := f.recorder.Events()
	if last := evts[len(evts)-1].Type; last != events.TypeUnitDeleted {
		t.Errorf("expected last event %s, got %s", events.TypeUnitDeleted, last)
	}
	assertInvariants(t, f.store)
}

func TestReconcile_ReportsAndFixesDrift(t *testing.T) {
	f := newFixture(t)
	f.createUnit(t, "O-", 0, 30)
	f.createUnit(t, "O-", 0, 30)
	f.store.inventory[bloodgroup.ONeg] = 7
	f.store.inventory[bloodgroup.APos] = 1

	drift, err := f.svc.Reconcile(f.ctx)
	mustNoErr(t, err)
	want := []Drift{
		{BloodGroup: bloodgroup.APos, Stored: 1, Actual: 0},
		{BloodGroup: bloodgroup.ONeg, Stored: 7, Actual: 2},
	}
	if !reflect.DeepEqual(drift, want) {
		t.Errorf("expected drift %v, got %v", want, drift)
	}
	assertInvariants(t, f.store)

	drift, err = f.svc.Reconcile(f.ctx)
	mustNoErr(t, err)
	if len(drift) != 0 {
		t.Errorf("expected no drift after reconcile, got %v", drift)
	}
}

func TestFilterUnits(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CreateUnit(f.ctx, Input{BloodGroup: "A+", DonationDate: day(0), ExpiryDate: day(30), DonorID: intPtr(1)})
	mustNoErr(t, err)
	_, err = f.svc.CreateUnit(f.ctx, Input{BloodGroup: "A+", DonationDate: day(-1), ExpiryDate: day(30), DonorID: intPtr(2)})
	mustNoErr(t, err)
	f.createUnit(t, "B+", 0, 30)

	items, total, err := f.svc.FilterUnits(f.ctx, Filter{BloodGroup: bloodgroup.APos}, 10, 0)
	mustNoErr(t, err)
	if total != 2 || len(items) != 2 {
		t.Errorf("A+: expected 2 of 2, got %d of %d", len(items), total)
	}

	items, total, err = f.svc.FilterUnits(f.ctx, Filter{DonorName: "asha"}, 10, 0)
	mustNoErr(t, err)
	if total != 1 || len(items) != 1 {
		t.Fatalf("donor asha: expected 1 of 1, got %d of %d", len(items), total)
	}
	if items[0].DonorName == nil || *items[0].DonorName != "Asha Rao" {
		t.Errorf("expected donor Asha Rao, got %v", items[0].DonorName)
	}

	_, total, err = f.svc.FilterUnits(f.ctx, Filter{Status: StatusIssued}, 10, 0)
	mustNoErr(t, err)
	if total != 0 {
		t.Errorf("expected no issued units, got %d", total)
	}

	_, _, err = f.svc.FilterUnits(f.ctx, Filter{Status: "Lost"}, 10, 0)
	wantKind(t, err, apperr.KindValidation)
}

// TestRandomOperations_PreserveInvariants drives a seeded mix of creates,
// issues, sweeps, updates and deletes and checks consistency after each.
func TestRandomOperations_PreserveInvariants(t *testing.T) {
	f := newFixture(t)
	rng := rand.New(rand.NewSource(42))
	patients := []string{"PAT0001", "PAT0002"}
	clock := testNow

	pick := func() string {
		if len(f.store.units) == 0 {
			return "BU20240000"
		}
		ids := make([]string, 0, len(f.store.units))
		for id := range f.store.units {
			ids = append(ids, id)
		}
		return ids[rng.Intn(len(ids))]
	}

	for i := 0; i < 300; i++ {
		g := bloodgroup.All[rng.Intn(len(bloodgroup.All))]
		switch op := rng.Intn(6); op {
		case 0, 1:
			_, _ = f.svc.CreateUnit(f.ctx, Input{BloodGroup: string(g), DonationDate: day(-rng.Intn(30)), ExpiryDate: day(rng.Intn(20) + 1)})
		case 2:
			_, _ = f.svc.Issue(f.ctx, pick(), patients[rng.Intn(len(patients))])
		case 3:
			clock = clock.AddDate(0, 0, rng.Intn(3))
			now := clock
			f.svc.SetClock(func() time.Time { return now })
			_, err := f.svc.ExpirePass(f.ctx)
			mustNoErr(t, err)
		case 4:
			_, _ = f.svc.UpdateUnit(f.ctx, pick(), Input{BloodGroup: string(g), DonationDate: day(-5), ExpiryDate: day(10)})
		case 5:
			_ = f.svc.DeleteUnit(f.ctx, pick())
		}
		assertInvariants(t, f.store)
		if t.Failed() {
			t.Fatalf("invariants broken after step %d", i)
		}
	}

	// Expired units never come back.
	for id, u := range f.store.units {
		if u.Status == StatusExpired && Transition(u.Status, StatusAvailable) == nil {
			t.Errorf("expired unit %s may become Available again", id)
		}
	}
}

func TestPublishFailureDoesNotFailOperation(t *testing.T) {
	f := newFixture(t)
	f.svc.SetPublisher(failingPublisher{})

	u, err := f.svc.CreateUnit(f.ctx, Input{BloodGroup: "O+", DonationDate: day(0), ExpiryDate: day(30)})
	mustNoErr(t, err)
	if _, ok := f.store.units[u.ID]; !ok {
		t.Errorf("unit %s must be stored", u.ID)
	}
}

type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, ...events.Event) error {
	return errors.New("broker unavailable")
}
func (failingPublisher) Close() error { return nil }

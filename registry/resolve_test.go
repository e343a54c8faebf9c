package registry_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/warp/hours-engine/registry"
)

// trackedContext builds a ResolutionContext with one tracked company-hours
// record for workerID on dateKey.
func trackedContext(workerID, dateKey string, hours ...registry.CompanyHours) *registry.ResolutionContext {
	lookup := registry.NewCompanyHoursLookup()
	for _, ch := range hours {
		lookup.Add(ch)
	}
	ctx := registry.NewResolutionContext()
	ctx.WeekData[workerID] = registry.WorkerWeekData{
		Days: map[string]registry.WorkerDayData{
			dateKey: {TotalHours: lookup.Total(), CompanyHours: lookup},
		},
	}
	return ctx
}

func TestResolve_ManualWinsOverTracked(t *testing.T) {
	// Manual "3,5" beats a tracked value of 10 for the same day.
	a := registry.Assignment{
		ID: "a1", WorkerID: "w1", CompanyID: "c1", CompanyName: "Acme",
		Hours: map[string]string{"2024-03-04": "3,5"},
	}
	ctx := trackedContext("w1", "2024-03-04",
		registry.CompanyHours{CompanyID: "c1", Name: "Acme", Hours: dec("10")})

	got := registry.Resolve(a, "2024-03-04", ctx)
	assert.Equal(t, registry.StateManual, got.State)
	assert.True(t, got.Hours.Equal(dec("3.5")), "got %s", got.Hours)
}

func TestResolve_BlankManualFallsThroughToTracked(t *testing.T) {
	a := registry.Assignment{
		ID: "a1", WorkerID: "w1", CompanyID: "c1", CompanyName: "Acme",
		Hours: map[string]string{"2024-03-04": "   "},
	}
	ctx := trackedContext("w1", "2024-03-04",
		registry.CompanyHours{CompanyID: "c1", Name: "Acme", Hours: dec("10")})

	got := registry.Resolve(a, "2024-03-04", ctx)
	assert.Equal(t, registry.StateTracked, got.State)
	assert.True(t, got.Hours.Equal(dec("10")))
}

func TestResolve_TrackedByNameWhenIdUnknown(t *testing.T) {
	a := registry.Assignment{
		ID: "a1", WorkerID: "w1", CompanyID: "other-id", CompanyName: "ACMÉ",
		Hours: map[string]string{},
	}
	ctx := trackedContext("w1", "2024-03-04",
		registry.CompanyHours{CompanyID: "c1", Name: "Acme", Hours: dec("6")})

	got := registry.Resolve(a, "2024-03-04", ctx)
	assert.Equal(t, registry.StateTracked, got.State)
	assert.True(t, got.Hours.Equal(dec("6")))
}

func TestResolve_TrackedHoursForUnassignedCompany(t *testing.T) {
	// Rows without a company still pick up tracked hours recorded under the
	// unassigned sentinel.
	a := registry.Assignment{
		ID: "a1", WorkerID: "w1", CompanyID: "", CompanyName: "",
		Hours: map[string]string{},
	}
	ctx := trackedContext("w1", "2024-03-04",
		registry.CompanyHours{CompanyID: "", Name: "", Hours: dec("5")})

	got := registry.Resolve(a, "2024-03-04", ctx)
	assert.Equal(t, registry.StateTracked, got.State)
	assert.True(t, got.Hours.Equal(dec("5")), "got %s", got.Hours)
}

func TestResolve_UnsetWhenNothingKnown(t *testing.T) {
	a := registry.Assignment{ID: "a1", WorkerID: "w1", CompanyID: "c1", Hours: map[string]string{}}

	got := registry.Resolve(a, "2024-03-04", registry.NewResolutionContext())
	assert.Equal(t, registry.StateUnset, got.State)
	assert.True(t, got.Hours.IsZero())
}

func TestResolve_NegativeValuesClampToZero(t *testing.T) {
	a := registry.Assignment{
		ID: "a1", WorkerID: "w1", CompanyID: "c1",
		Hours: map[string]string{"2024-03-04": "-2"},
	}
	got := registry.Resolve(a, "2024-03-04", registry.NewResolutionContext())
	assert.Equal(t, registry.StateManual, got.State)
	assert.True(t, got.Hours.IsZero())
}

func TestResolve_UnparseableManualIsZeroNotTracked(t *testing.T) {
	// A non-empty manual string stays manual even when unparseable: the
	// override wins, its value degrades to zero.
	a := registry.Assignment{
		ID: "a1", WorkerID: "w1", CompanyID: "c1", CompanyName: "Acme",
		Hours: map[string]string{"2024-03-04": "abc"},
	}
	ctx := trackedContext("w1", "2024-03-04",
		registry.CompanyHours{CompanyID: "c1", Name: "Acme", Hours: dec("10")})

	got := registry.Resolve(a, "2024-03-04", ctx)
	assert.Equal(t, registry.StateManual, got.State)
	assert.True(t, got.Hours.IsZero())
}

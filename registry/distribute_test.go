package registry_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/hours-engine/registry"
)

func selectedRows(n int) []registry.DistributionRow {
	rows := make([]registry.DistributionRow, n)
	for i := range rows {
		rows[i] = registry.DistributionRow{AssignmentID: fmt.Sprintf("a%d", i+1)}
	}
	return rows
}

func TestEqualSplit_SumsExactlyToTotal(t *testing.T) {
	totals := []decimal.Decimal{
		dec("8"),
		dec("7.5"),
		dec("100").Div(decimal.NewFromInt(3)),
	}
	counts := []int{1, 2, 7, 13}

	for _, total := range totals {
		for _, n := range counts {
			shares := registry.EqualSplit(total, n)
			require.Len(t, shares, n)

			sum := decimal.Zero
			for _, s := range shares {
				sum = sum.Add(s)
			}
			// Exact, not just within epsilon.
			assert.True(t, sum.Equal(total), "total=%s n=%d: sum=%s", total, n, sum)
		}
	}
}

func TestEqualSplit_RemainderOnLastRow(t *testing.T) {
	shares := registry.EqualSplit(dec("10"), 3)
	require.Len(t, shares, 3)
	assert.True(t, shares[0].Equal(dec("3.3333")), "got %s", shares[0])
	assert.True(t, shares[1].Equal(dec("3.3333")))
	assert.True(t, shares[2].Equal(dec("3.3334")))
}

func TestEqualSplitRows_ValidateAndApply(t *testing.T) {
	in := registry.DistributionInput{
		DayKey: "2024-03-04",
		Mode:   registry.ModeHours,
		Total:  dec("10"),
		Rows:   selectedRows(3),
	}
	in.Rows = registry.EqualSplitRows(in)

	require.Nil(t, in.Validate(), "an equal split always validates against its own total")

	result, err := registry.Apply(in)
	require.NoError(t, err)
	sum := decimal.Zero
	for _, v := range result.Updates {
		sum = sum.Add(v)
	}
	assert.True(t, sum.Equal(dec("10")))
}

func TestValidate_HoursMode(t *testing.T) {
	base := registry.DistributionInput{
		DayKey: "2024-03-04",
		Mode:   registry.ModeHours,
		Total:  dec("10"),
	}

	t.Run("no selection", func(t *testing.T) {
		in := base
		err := in.Validate()
		require.NotNil(t, err)
		assert.True(t, errors.Is(err, registry.ErrNoRowsSelected))
	})

	t.Run("zero total", func(t *testing.T) {
		in := base
		in.Total = decimal.Zero
		in.Rows = selectedRows(2)
		err := in.Validate()
		require.NotNil(t, err)
		assert.True(t, errors.Is(err, registry.ErrZeroTotal))
	})

	t.Run("blank row blocks apply", func(t *testing.T) {
		// Manual hours for 2 of 3 rows, third left blank.
		in := base
		in.Rows = []registry.DistributionRow{
			{AssignmentID: "a1", Entered: "4"},
			{AssignmentID: "a2", Entered: "6"},
			{AssignmentID: "a3", Entered: ""},
		}
		err := in.Validate()
		require.NotNil(t, err)
		assert.Equal(t, registry.DistributionIncompleteRow, err.Code)
		assert.Contains(t, err.Message, "Completa las horas para todas las empresas seleccionadas")
	})

	t.Run("missing hours reports signed difference", func(t *testing.T) {
		in := base
		in.Rows = []registry.DistributionRow{
			{AssignmentID: "a1", Entered: "4"},
			{AssignmentID: "a2", Entered: "4"},
		}
		err := in.Validate()
		require.NotNil(t, err)
		assert.Equal(t, registry.DistributionSumMismatch, err.Code)
		assert.Contains(t, err.Message, "Faltan 2 horas")
		assert.True(t, err.Difference.Equal(dec("-2")))
	})

	t.Run("excess hours reports signed difference", func(t *testing.T) {
		in := base
		in.Rows = []registry.DistributionRow{
			{AssignmentID: "a1", Entered: "7"},
			{AssignmentID: "a2", Entered: "5"},
		}
		err := in.Validate()
		require.NotNil(t, err)
		assert.Contains(t, err.Message, "Sobran 2 horas")
		assert.True(t, err.Difference.Equal(dec("2")))
	})

	t.Run("epsilon tolerance", func(t *testing.T) {
		in := base
		in.Rows = []registry.DistributionRow{
			{AssignmentID: "a1", Entered: "5,005"},
			{AssignmentID: "a2", Entered: "5"},
		}
		assert.Nil(t, in.Validate(), "0.005 off is within epsilon")
	})
}

func TestValidate_PercentageMode(t *testing.T) {
	in := registry.DistributionInput{
		DayKey: "2024-03-04",
		Mode:   registry.ModePercentage,
		Total:  dec("8"),
		Rows: []registry.DistributionRow{
			{AssignmentID: "a1", Entered: "50"},
			{AssignmentID: "a2", Entered: "30"},
		},
	}
	err := in.Validate()
	require.NotNil(t, err)
	assert.Equal(t, registry.DistributionPctMismatch, err.Code)

	// Within the +-0.5 band.
	in.Rows = []registry.DistributionRow{
		{AssignmentID: "a1", Entered: "50,2"},
		{AssignmentID: "a2", Entered: "50,1"},
	}
	assert.Nil(t, in.Validate())
}

func TestPercentageRoundTrip(t *testing.T) {
	// Allocating 100% equally across N rows, then recomputing hours from
	// those percentages, reproduces the equal-hours allocation within
	// epsilon.
	total := dec("7.5")
	for _, n := range []int{1, 2, 7, 13} {
		in := registry.DistributionInput{
			DayKey: "2024-03-04",
			Mode:   registry.ModePercentage,
			Total:  total,
			Rows:   selectedRows(n),
		}
		in.Rows = registry.EqualSplitRows(in)
		require.Nil(t, in.Validate(), "n=%d", n)

		result, err := registry.Apply(in)
		require.NoError(t, err)

		equalHours := registry.EqualSplit(total, n)
		for i, row := range in.Rows {
			got := result.Updates[row.AssignmentID]
			assert.True(t, registry.HoursEqual(got, equalHours[i]),
				"n=%d row=%d: %s vs %s", n, i, got, equalHours[i])
		}
	}
}

func TestApply_PercentageComputesEstimatedHours(t *testing.T) {
	in := registry.DistributionInput{
		DayKey: "2024-03-04",
		Mode:   registry.ModePercentage,
		Total:  dec("8"),
		Rows: []registry.DistributionRow{
			{AssignmentID: "a1", Entered: "75"},
			{AssignmentID: "a2", Entered: "25"},
		},
	}
	result, err := registry.Apply(in)
	require.NoError(t, err)
	assert.True(t, result.Updates["a1"].Equal(dec("6")))
	assert.True(t, result.Updates["a2"].Equal(dec("2")))
}

func TestApplyToAssignments_WritesFormattedOverrides(t *testing.T) {
	assignments := []registry.Assignment{
		{ID: "a1", WorkerID: "w1", Hours: map[string]string{}},
		{ID: "a2", WorkerID: "w2", Hours: map[string]string{"2024-03-04": "1"}},
		{ID: "a3", WorkerID: "w3", Hours: map[string]string{}},
	}
	result := &registry.DistributionResult{
		DayKey: "2024-03-04",
		Mode:   registry.ModeHours,
		Updates: map[string]decimal.Decimal{
			"a1": dec("3.5"),
			"a2": dec("4"),
		},
	}

	updated := registry.ApplyToAssignments(result, assignments)

	assert.Equal(t, "3,5", updated[0].Hours["2024-03-04"])
	assert.Equal(t, "4", updated[1].Hours["2024-03-04"])
	_, touched := updated[2].Hours["2024-03-04"]
	assert.False(t, touched, "unselected rows keep their state")

	// Original assignments are never mutated in place.
	assert.Empty(t, assignments[0].Hours)
}

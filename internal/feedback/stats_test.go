package feedback

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompute_Empty(t *testing.T) {
	s := Compute(nil, Filter{})

	assert.Zero(t, s.Records)
	assert.Zero(t, s.Runs)
	assert.Zero(t, s.Frames)
	assert.Zero(t, s.Accepted)
	assert.Zero(t, s.Rejected)
	assert.Zero(t, s.AutoAccepted)
	assert.Nil(t, s.AcceptanceRate)
	assert.NotNil(t, s.MeanConfidence)
	assert.Empty(t, s.MeanConfidence)
	assert.NotNil(t, s.ByMotionType)
	assert.NotNil(t, s.CommonIssues)
	assert.Zero(t, s.Calibration.Reviewed)
	assert.Nil(t, s.Calibration.Suggested)
}

func TestCompute_LatestRecordWins(t *testing.T) {
	records := []Record{
		{RunID: "r1", Ordinal: 1, Confidence: Confidence(0.6), Disposition: Unreviewed},
		{RunID: "r1", Ordinal: 2, Confidence: Confidence(0.9), Disposition: Accepted, AutoAccepted: true},
		{RunID: "r1", Ordinal: 1, Confidence: Confidence(0.6), Disposition: Rejected, Issues: []string{"flicker"}},
		{RunID: "r1", Ordinal: 1, Confidence: Confidence(0.6), Disposition: Accepted},
	}

	s := Compute(records, Filter{})

	assert.Equal(t, 4, s.Records)
	assert.Equal(t, 1, s.Runs)
	assert.Equal(t, 2, s.Frames)
	assert.Equal(t, 2, s.Accepted)
	assert.Zero(t, s.Rejected)
	assert.Zero(t, s.Unreviewed)
	assert.Equal(t, 1, s.AutoAccepted)
	require.NotNil(t, s.AcceptanceRate)
	assert.InDelta(t, 1.0, *s.AcceptanceRate, 1e-9)
	assert.InDelta(t, 0.75, s.MeanConfidence[Accepted], 1e-9)
	assert.NotContains(t, s.MeanConfidence, Rejected)
	assert.Empty(t, s.CommonIssues, "superseded rejections do not count")
}

func TestCompute_Breakdowns(t *testing.T) {
	records := []Record{
		{RunID: "r1", Ordinal: 1, Disposition: Accepted, Character: "fox", MotionType: "subtle"},
		{RunID: "r1", Ordinal: 2, Disposition: Rejected, Character: "fox", MotionType: "subtle", Issues: []string{"smear", "flicker"}},
		{RunID: "r2", Ordinal: 1, Disposition: Rejected, Character: "owl", MotionType: "dynamic", Issues: []string{"flicker"}},
		{RunID: "r2", Ordinal: 2, Disposition: Rejected, Character: "owl", MotionType: "dynamic", Issues: []string{"blur"}},
		{RunID: "r2", Ordinal: 3, Disposition: Unreviewed, Character: "owl", MotionType: "dynamic"},
	}

	s := Compute(records, Filter{})

	require.NotNil(t, s.AcceptanceRate)
	assert.InDelta(t, 0.25, *s.AcceptanceRate, 1e-9)
	assert.Equal(t, 1, s.Unreviewed)

	assert.Equal(t, []Rate{
		{Key: "dynamic", Accepted: 0, Rejected: 2, Rate: 0},
		{Key: "subtle", Accepted: 1, Rejected: 1, Rate: 0.5},
	}, s.ByMotionType)
	assert.Equal(t, []Rate{
		{Key: "fox", Accepted: 1, Rejected: 1, Rate: 0.5},
		{Key: "owl", Accepted: 0, Rejected: 2, Rate: 0},
	}, s.ByCharacter)
	assert.Equal(t, []IssueCount{
		{Issue: "flicker", Count: 2},
		{Issue: "blur", Count: 1},
		{Issue: "smear", Count: 1},
	}, s.CommonIssues)
}

func TestCompute_Filter(t *testing.T) {
	records := []Record{
		{RunID: "r1", Ordinal: 1, Disposition: Accepted, Character: "fox", MotionType: "subtle"},
		{RunID: "r2", Ordinal: 1, Disposition: Rejected, Character: "owl", MotionType: "subtle"},
		{RunID: "r3", Ordinal: 1, Disposition: Rejected, Character: "fox", MotionType: "dynamic"},
	}

	s := Compute(records, Filter{Character: "fox"})
	assert.Equal(t, 2, s.Records)
	assert.Equal(t, 1, s.Accepted)
	assert.Equal(t, 1, s.Rejected)

	s = Compute(records, Filter{Character: "fox", MotionType: "subtle"})
	assert.Equal(t, 1, s.Records)
	assert.Equal(t, 1, s.Accepted)

	s = Compute(records, Filter{Character: "cat"})
	assert.Zero(t, s.Records)
	assert.Nil(t, s.AcceptanceRate)
}

func TestCalibrate(t *testing.T) {
	t.Run("too few samples", func(t *testing.T) {
		var records []Record
		for i := range MinCalibrationSamples - 1 {
			records = append(records, Record{RunID: "r", Ordinal: i + 1, Confidence: Confidence(0.9), Disposition: Accepted})
		}
		c := Calibrate(records, Filter{})
		assert.Equal(t, MinCalibrationSamples-1, c.Reviewed)
		assert.Nil(t, c.Suggested)
	})

	t.Run("suggests lowest precise threshold", func(t *testing.T) {
		// Confidences 0.99, 0.98, ... 0.60 with rejections only below 0.80.
		var records []Record
		for i := range 40 {
			conf := 0.99 - float64(i)*0.01
			d := Accepted
			if conf < 0.795 {
				d = Rejected
			}
			records = append(records, Record{
				RunID: fmt.Sprintf("r%d", i), Ordinal: 1, Confidence: Confidence(conf), Disposition: d,
			})
		}
		records = append(records, Record{RunID: "pending", Ordinal: 1, Confidence: Confidence(0.1), Disposition: Unreviewed})

		c := Calibrate(records, Filter{})
		assert.Equal(t, 40, c.Reviewed)
		require.NotNil(t, c.Suggested)
		// 20 accepted above 0.80; one more rejection keeps precision at 20/21 >= 0.95.
		assert.InDelta(t, 0.79, *c.Suggested, 1e-9)
		require.NotNil(t, c.Precision)
		assert.GreaterOrEqual(t, *c.Precision, TargetPrecision)
		require.NotNil(t, c.Coverage)
		assert.InDelta(t, 21.0/40.0, *c.Coverage, 1e-9)
	})

	t.Run("no threshold reaches target", func(t *testing.T) {
		var records []Record
		for i := range 30 {
			d := Accepted
			if i%2 == 0 {
				d = Rejected
			}
			records = append(records, Record{RunID: "r", Ordinal: i + 1, Confidence: Confidence(0.5), Disposition: d})
		}
		c := Calibrate(records, Filter{})
		assert.Equal(t, 30, c.Reviewed)
		assert.Nil(t, c.Suggested)
	})

	t.Run("auto-accepted records are not reviews", func(t *testing.T) {
		var records []Record
		for i := range MinCalibrationSamples + 5 {
			records = append(records, Record{
				RunID: fmt.Sprintf("r%d", i), Ordinal: 1, Confidence: Confidence(0.86),
				Disposition: Accepted, AutoAccepted: true,
			})
		}
		c := Calibrate(records, Filter{})
		assert.Zero(t, c.Reviewed)
		assert.Nil(t, c.Suggested)

		// A later human review of the same frame counts.
		records = append(records, Record{RunID: "r0", Ordinal: 1, Confidence: Confidence(0.86), Disposition: Rejected})
		c = Calibrate(records, Filter{})
		assert.Equal(t, 1, c.Reviewed)
	})
}

package labs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"diabetes-clinic-server/internal/apperrors"
	"diabetes-clinic-server/internal/models"
)

func TestInterpret_Thresholds(t *testing.T) {
	catalog := DefaultCatalog()

	tests := []struct {
		name     string
		testType string
		param    string
		value    string
		manual   bool
		want     models.Interpretation
	}{
		{"hba1c normal", "HbA1c", "HbA1c", "6.9", false, models.InterpretationNormal},
		{"hba1c lower bound is abnormal", "HbA1c", "HbA1c", "7.0", false, models.InterpretationAbnormal},
		{"hba1c abnormal", "HbA1c", "HbA1c", "7.5", false, models.InterpretationAbnormal},
		{"hba1c upper bound is critical", "HbA1c", "HbA1c", "9.0", false, models.InterpretationCritical},
		{"hba1c critical", "HbA1c", "HbA1c", "9.5", false, models.InterpretationCritical},
		{"glucose normal", "Fasting Glucose", "Fasting Glucose", "85", false, models.InterpretationNormal},
		{"glucose abnormal", "Fasting Glucose", "Fasting Glucose", "150", false, models.InterpretationAbnormal},
		{"glucose critical", "Fasting Glucose", "Fasting Glucose", "210", false, models.InterpretationCritical},
		{"glucose low", "Fasting Glucose", "Fasting Glucose", "65", false, models.InterpretationAbnormal},
		{"glucose severe low", "Fasting Glucose", "Fasting Glucose", "40", false, models.InterpretationCritical},
		{"manual override", "HbA1c", "HbA1c", "5.0", true, models.InterpretationCritical},
		{"test type name is case insensitive", "hba1c", "HbA1c", "7.5", false, models.InterpretationAbnormal},
		{"no bands defaults to normal", "Lipid Profile", "LDL", "250", false, models.InterpretationNormal},
		{"unknown test defaults to normal", "Vitamin D", "25-OH", "10", false, models.InterpretationNormal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := catalog.Interpret(tt.testType, map[string]string{tt.param: tt.value}, tt.manual)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestInterpret_NonNumeric(t *testing.T) {
	_, err := DefaultCatalog().Interpret("HbA1c", map[string]string{"HbA1c": "high"}, false)

	var verr *apperrors.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.True(t, verr.Has("HbA1c"))
}

func TestInterpret_ManualFlagStillValidatesValues(t *testing.T) {
	_, err := DefaultCatalog().Interpret("HbA1c", map[string]string{"HbA1c": "abc"}, true)
	var verr *apperrors.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.True(t, verr.Has("HbA1c"))

	// free-text parameters without bands are not parsed
	got, err := DefaultCatalog().Interpret("Urine Microalbumin", map[string]string{"Microalbumin": "trace"}, true)
	require.NoError(t, err)
	assert.Equal(t, models.InterpretationCritical, got)
}

func TestInterpret_WorstParameterWins(t *testing.T) {
	catalog, err := ParseCatalog([]byte(`
tests:
  - name: Panel
    parameters:
      - name: A
        bands:
          - below: "10"
            interpretation: Normal
          - interpretation: Abnormal
      - name: B
        bands:
          - below: "5"
            interpretation: Normal
          - interpretation: Critical
`))
	require.NoError(t, err)

	got, err := catalog.Interpret("Panel", map[string]string{"A": "12", "B": "1"}, false)
	require.NoError(t, err)
	assert.Equal(t, models.InterpretationAbnormal, got)

	got, err = catalog.Interpret("Panel", map[string]string{"A": "12", "B": "6"}, false)
	require.NoError(t, err)
	assert.Equal(t, models.InterpretationCritical, got)
}

func TestDefaultCatalog(t *testing.T) {
	catalog := DefaultCatalog()

	hba1c, ok := catalog.Lookup("HbA1c")
	require.True(t, ok)
	assert.Equal(t, "Blood", hba1c.SampleType)
	assert.Equal(t, "< 7.0%", hba1c.NormalRange())

	lipids, ok := catalog.Lookup("lipid profile")
	require.True(t, ok)
	assert.Len(t, lipids.Parameters, 4)
	assert.Contains(t, lipids.NormalRange(), "LDL: < 100 mg/dL")

	names := make([]string, 0)
	for _, tt := range catalog.Tests() {
		names = append(names, tt.Name)
	}
	assert.Equal(t, "HbA1c", names[0])
	assert.Contains(t, names, "Urine Microalbumin")
}

func TestParseCatalog_Rejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"empty", "tests: []"},
		{"duplicate test", `
tests:
  - name: A
    parameters: [{name: x}]
  - name: a
    parameters: [{name: x}]`},
		{"no parameters", `
tests:
  - name: A`},
		{"unknown interpretation", `
tests:
  - name: A
    parameters:
      - name: x
        bands:
          - interpretation: Fine`},
		{"unbounded band not last", `
tests:
  - name: A
    parameters:
      - name: x
        bands:
          - interpretation: Normal
          - below: "5"
            interpretation: Critical`},
		{"bounded last band", `
tests:
  - name: A
    parameters:
      - name: x
        bands:
          - below: "5"
            interpretation: Normal`},
		{"decreasing bounds", `
tests:
  - name: A
    parameters:
      - name: x
        bands:
          - below: "5"
            interpretation: Normal
          - below: "3"
            interpretation: Abnormal
          - interpretation: Critical`},
		{"bad bound", `
tests:
  - name: A
    parameters:
      - name: x
        bands:
          - below: five
            interpretation: Normal
          - interpretation: Critical`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCatalog([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoadCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
tests:
  - name: Ketones
    sampleType: Blood
    parameters:
      - name: Beta-hydroxybutyrate
        unit: mmol/L
        normalRange: "< 0.6 mmol/L"
        bands:
          - below: "0.6"
            interpretation: Normal
          - below: "3.0"
            interpretation: Abnormal
          - interpretation: Critical
`), 0o600))

	catalog, err := LoadCatalog(path)
	require.NoError(t, err)

	got, err := catalog.Interpret("Ketones", map[string]string{"Beta-hydroxybutyrate": "3.2"}, false)
	require.NoError(t, err)
	assert.Equal(t, models.InterpretationCritical, got)

	_, err = LoadCatalog(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

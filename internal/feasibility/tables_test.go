package feasibility

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joelkehle/trialscope/internal/concept"
	"github.com/joelkehle/trialscope/internal/samplesize"
)

func TestDefaultTablesValid(t *testing.T) {
	require.NoError(t, DefaultTables().Validate())
}

func TestParseTablesOverlay(t *testing.T) {
	blob := []byte(`
site_setup_base_usd = 40000.0

[patients_per_site]
III = 20.0

[cost_per_patient.survival]
standard = 50000.0
oncology = 70000.0
high_cost = 95000.0
oncology_high_cost = 130000.0

[follow_up_months]
survival = 36.0
`)
	tb, err := ParseTables(blob)
	require.NoError(t, err)
	assert.Equal(t, 40000.0, tb.SiteSetupBaseUSD)
	assert.Equal(t, 20.0, tb.PatientsPerSite[concept.PhaseIII])
	assert.Equal(t, 10.0, tb.PatientsPerSite[concept.PhaseII])
	assert.Equal(t, 70000.0, tb.costPerPatient(samplesize.EndpointSurvival, true, false))
	assert.Equal(t, 36.0, tb.followUpMonths(samplesize.EndpointSurvival))
	assert.Equal(t, 150000.0, tb.RegulatoryBaseUSD)

	// overlay must not leak into the defaults
	assert.Equal(t, 15.0, DefaultTables().PatientsPerSite[concept.PhaseIII])
}

func TestParseTablesRejectsBadInput(t *testing.T) {
	cases := map[string]string{
		"unknown endpoint": "[follow_up_months]\nquality_of_life = 3.0\n",
		"bad split":        "[standard_split]\npersonnel = 0.5\nmaterial = 0.5\nmonitoring = 0.5\ndata = 0.5\n",
		"zero site cost":   "site_setup_base_usd = 0.0\n",
		"zero per site":    "[patients_per_site]\nII = 0.0\n",
		"not toml":         "this is = = not toml",
	}
	for name, blob := range cases {
		_, err := ParseTables([]byte(blob))
		assert.Error(t, err, name)
	}
}

func TestLoadTables(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tables.toml")
	require.NoError(t, os.WriteFile(path, []byte("monitoring_share = 0.2\n"), 0o644))
	tb, err := LoadTables(path)
	require.NoError(t, err)
	assert.Equal(t, 0.2, tb.MonitoringShare)

	_, err = LoadTables(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestCustomTablesChangeEstimate(t *testing.T) {
	tb := DefaultTables()
	tb.PatientsPerSite[concept.PhaseIII] = 30
	c := NewCalculator(Config{Tables: &tb, Sizer: fixedSizer{patients: 300}})
	d := estimate(t, c, concept.Descriptor{Phase: "III", Indication: "psoriasis"})
	assert.Equal(t, 10, d.Sites)
}

func TestKeywordClassifier(t *testing.T) {
	k := NewKeywordClassifier()
	cases := []struct {
		d    concept.Descriptor
		want string
	}{
		{concept.Descriptor{Indication: "Relapsed B-cell lymphoma", DrugName: "autologous CAR-T"}, "cell_gene_therapy"},
		{concept.Descriptor{Indication: "HER2+ metastatic breast cancer"}, "oncology"},
		{concept.Descriptor{Indication: "Duchenne muscular dystrophy"}, "rare_disease"},
		{concept.Descriptor{Indication: "Early Alzheimer's disease"}, "neurology"},
		{concept.Descriptor{Indication: "Heart failure with reduced ejection fraction"}, "cardiovascular"},
		{concept.Descriptor{Indication: "Moderate-to-severe plaque psoriasis"}, "immunology"},
		{concept.Descriptor{Indication: "Chronic hepatitis B"}, "infectious_disease"},
		{concept.Descriptor{Indication: "Type 2 diabetes"}, "metabolic"},
		{concept.Descriptor{Indication: "Chronic cough"}, "default"},
	}
	for _, tc := range cases {
		got := k.Classify(concept.Normalize(tc.d, fixedNow))
		assert.Equal(t, tc.want, got.Area, tc.d.Indication)
	}
}

func TestProfileForArea(t *testing.T) {
	p := ProfileForArea("rare_disease")
	assert.Equal(t, 0.6, p.SampleMultiplier)
	assert.Equal(t, 1.25, p.CostMultiplier(concept.PhaseIII))
	assert.Equal(t, "default", ProfileForArea("nope").Area)
	assert.Equal(t, 1.0, TherapeuticProfile{}.CostMultiplier(concept.PhaseII))
}

func TestCatalogVendorEngine(t *testing.T) {
	e := NewCatalogVendorEngine()
	got := e.Scenarios([]string{" CRO_Full_Service ", "edc_platform", "cro_full_service", "nobody"}, concept.PhaseIII, 10_000_000, 24)
	require.Len(t, got, 2)

	cro := got[0]
	assert.Equal(t, "cro_full_service", cro.VendorID)
	assert.InDelta(t, 0.12*10_000_000*1.1, cro.BaseUSD, 1e-6)
	assert.InDelta(t, cro.BaseUSD*0.9, cro.OptimisticUSD, 1e-6)
	assert.InDelta(t, cro.BaseUSD*1.2, cro.PessimisticUSD, 1e-6)

	edc := got[1]
	assert.InDelta(t, 15000*24*1.1, edc.BaseUSD, 1e-6)

	assert.Empty(t, e.Scenarios(nil, concept.PhaseII, 1e6, 12))
}

package plan

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func samplePlan() *ProjectPlan {
	return &ProjectPlan{
		ProjectName: "shop",
		Version:     "1.0.0",
		Stakeholder: "ops",
		Capabilities: []Capability{
			{
				Name:  "catalog",
				Phase: 1,
				Features: []Feature{
					{Name: "schema", Description: "Design product schema", EstimatedHours: 4},
					{Name: "catalog-api", Description: "REST API for products", DependsOn: []string{"schema"}, Phase: 2, EstimatedHours: 8},
				},
			},
			{
				Name:  "checkout",
				Phase: 2,
				Features: []Feature{
					{Name: "cart-ui", Description: "Cart component", DependsOn: []string{"catalog-api"}, EstimatedHours: 6.5},
				},
			},
		},
	}
}

func TestValidate_OK(t *testing.T) {
	require.NoError(t, samplePlan().Validate())
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	p := samplePlan()
	p.ProjectName = ""
	p.Capabilities[0].Features[1].Phase = 0 // inherits 1, fine
	p.Capabilities[1].Features = append(p.Capabilities[1].Features,
		Feature{Name: "schema", EstimatedHours: 1},
		Feature{Name: "late", Phase: 1, EstimatedHours: -2, Complexity: "huge"},
	)

	err := p.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "project_name is required")
	assert.Contains(t, msg, `feature "schema" declared in both "catalog" and "checkout"`)
	assert.Contains(t, msg, `feature "late": phase 1 decreases after phase 2`)
	assert.Contains(t, msg, `feature "late": estimated_hours must be >= 0`)
	assert.Contains(t, msg, `unknown complexity "huge"`)
}

func TestValidate_NoFeatures(t *testing.T) {
	p := &ProjectPlan{ProjectName: "empty"}
	err := p.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "plan has no features")
}

func TestFeatures_InheritPhase(t *testing.T) {
	features := samplePlan().Features()
	require.Len(t, features, 3)

	assert.Equal(t, "schema", features[0].Name)
	assert.Equal(t, "catalog", features[0].Capability)
	assert.Equal(t, 1, features[0].Phase)
	assert.Equal(t, 2, features[1].Phase)
	assert.Equal(t, "checkout", features[2].Capability)
	assert.Equal(t, 2, features[2].Phase)
}

func TestTotalHours(t *testing.T) {
	assert.InDelta(t, 18.5, samplePlan().TotalHours(), 0.0001)
}

func TestLoad_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.yaml")
	content := `project_name: shop
version: "1.0"
stakeholder: ops
capabilities:
  - name: catalog
    phase: 1
    features:
      - name: schema
        description: Design product schema
        estimated_hours: 4
      - name: api
        description: Products API
        depends_on: [schema]
        estimated_hours: 6
        complexity: medium
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	p, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "shop", p.ProjectName)
	require.Len(t, p.Capabilities, 1)
	require.Len(t, p.Capabilities[0].Features, 2)
	assert.Equal(t, []string{"schema"}, p.Capabilities[0].Features[1].DependsOn)
	assert.Equal(t, ComplexityMedium, p.Capabilities[0].Features[1].Complexity)
}

func TestLoad_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.json")
	content := `{"project_name":"shop","capabilities":[{"name":"c","phase":1,"features":[{"name":"f","estimated_hours":2}]}]}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	p, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2.0, p.TotalHours())
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{not json"), 0644))
	_, err = Load(bad)
	assert.Error(t, err)

	invalid := filepath.Join(dir, "invalid.json")
	require.NoError(t, os.WriteFile(invalid, []byte(`{"project_name":"x"}`), 0644))
	_, err = Load(invalid)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "plan has no features")
}

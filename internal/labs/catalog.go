package labs

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"diabetes-clinic-server/internal/apperrors"
	"diabetes-clinic-server/internal/models"
)

//go:embed catalog.yaml
var defaultCatalogYAML []byte

// Band maps values below Below to an interpretation. The final band of a
// parameter is unbounded.
type Band struct {
	Below          decimal.Decimal       `json:"below"`
	Bounded        bool                  `json:"bounded"`
	Interpretation models.Interpretation `json:"interpretation"`
}

// Parameter is one measured value of a test.
type Parameter struct {
	Name        string `json:"name"`
	Unit        string `json:"unit,omitempty"`
	NormalRange string `json:"normalRange,omitempty"`
	Bands       []Band `json:"-"`
}

// classify returns the band interpretation for v.
func (p Parameter) classify(v decimal.Decimal) models.Interpretation {
	for _, b := range p.Bands {
		if !b.Bounded || v.LessThan(b.Below) {
			return b.Interpretation
		}
	}
	return models.InterpretationNormal
}

// TestType is the template a result must fill in.
type TestType struct {
	Name       string      `json:"name"`
	SampleType string      `json:"sampleType"`
	Parameters []Parameter `json:"parameters"`
}

// NormalRange renders every parameter's reference range on one line.
func (t TestType) NormalRange() string {
	parts := make([]string, 0, len(t.Parameters))
	for _, p := range t.Parameters {
		if p.NormalRange == "" {
			continue
		}
		if len(t.Parameters) == 1 {
			return p.NormalRange
		}
		parts = append(parts, p.Name+": "+p.NormalRange)
	}
	return strings.Join(parts, "; ")
}

// Catalog is the set of test types the lab accepts, with their thresholds.
// It is read-only after construction.
type Catalog struct {
	tests []TestType
	index map[string]int
}

type catalogFile struct {
	Tests []struct {
		Name       string `yaml:"name"`
		SampleType string `yaml:"sampleType"`
		Parameters []struct {
			Name        string `yaml:"name"`
			Unit        string `yaml:"unit"`
			NormalRange string `yaml:"normalRange"`
			Bands       []struct {
				Below          string `yaml:"below"`
				Interpretation string `yaml:"interpretation"`
			} `yaml:"bands"`
		} `yaml:"parameters"`
	} `yaml:"tests"`
}

// DefaultCatalog returns the built-in catalog.
func DefaultCatalog() *Catalog {
	c, err := ParseCatalog(defaultCatalogYAML)
	if err != nil {
		panic("labs: built-in catalog is invalid: " + err.Error())
	}
	return c
}

// LoadCatalog reads a catalog from a YAML file.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read lab catalog: %w", err)
	}
	c, err := ParseCatalog(data)
	if err != nil {
		return nil, fmt.Errorf("lab catalog %s: %w", path, err)
	}
	return c, nil
}

// ParseCatalog decodes and checks a YAML catalog.
func ParseCatalog(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if len(file.Tests) == 0 {
		return nil, fmt.Errorf("no tests defined")
	}

	c := &Catalog{index: make(map[string]int, len(file.Tests))}
	for _, ft := range file.Tests {
		name := strings.TrimSpace(ft.Name)
		if name == "" {
			return nil, fmt.Errorf("test without a name")
		}
		key := strings.ToLower(name)
		if _, dup := c.index[key]; dup {
			return nil, fmt.Errorf("test %q defined twice", name)
		}
		if len(ft.Parameters) == 0 {
			return nil, fmt.Errorf("test %q has no parameters", name)
		}

		tt := TestType{Name: name, SampleType: ft.SampleType}
		seen := map[string]bool{}
		for _, fp := range ft.Parameters {
			pname := strings.TrimSpace(fp.Name)
			if pname == "" || seen[pname] {
				return nil, fmt.Errorf("test %q: missing or duplicate parameter name %q", name, pname)
			}
			seen[pname] = true

			p := Parameter{Name: pname, Unit: fp.Unit, NormalRange: fp.NormalRange}
			for i, fb := range fp.Bands {
				band := Band{Interpretation: models.Interpretation(fb.Interpretation)}
				switch band.Interpretation {
				case models.InterpretationNormal, models.InterpretationAbnormal, models.InterpretationCritical:
				default:
					return nil, fmt.Errorf("test %q parameter %q: unknown interpretation %q", name, pname, fb.Interpretation)
				}
				last := i == len(fp.Bands)-1
				if fb.Below == "" {
					if !last {
						return nil, fmt.Errorf("test %q parameter %q: only the last band may be unbounded", name, pname)
					}
				} else {
					below, err := decimal.NewFromString(fb.Below)
					if err != nil {
						return nil, fmt.Errorf("test %q parameter %q: bad bound %q: %w", name, pname, fb.Below, err)
					}
					if last {
						return nil, fmt.Errorf("test %q parameter %q: the last band must be unbounded", name, pname)
					}
					if i > 0 && !below.GreaterThan(p.Bands[i-1].Below) {
						return nil, fmt.Errorf("test %q parameter %q: bounds must increase", name, pname)
					}
					band.Below = below
					band.Bounded = true
				}
				p.Bands = append(p.Bands, band)
			}
			tt.Parameters = append(tt.Parameters, p)
		}

		c.index[key] = len(c.tests)
		c.tests = append(c.tests, tt)
	}
	return c, nil
}

// Lookup finds a test type by name, ignoring case.
func (c *Catalog) Lookup(name string) (TestType, bool) {
	i, ok := c.index[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return TestType{}, false
	}
	return c.tests[i], true
}

// Tests lists the catalog in file order.
func (c *Catalog) Tests() []TestType {
	out := make([]TestType, len(c.tests))
	copy(out, c.tests)
	return out
}

// Interpret classifies a set of result values. Each banded parameter is
// classified and the most severe reading is returned; test types without
// bands read as Normal. A manual critical flag overrides the classification
// but not the numeric check on banded values.
func (c *Catalog) Interpret(testType string, values map[string]string, manualCritical bool) (models.Interpretation, error) {
	tt, ok := c.Lookup(testType)
	if !ok {
		if manualCritical {
			return models.InterpretationCritical, nil
		}
		return models.InterpretationNormal, nil
	}

	worst := models.InterpretationNormal
	verr := &apperrors.ValidationError{}
	for _, p := range tt.Parameters {
		if len(p.Bands) == 0 {
			continue
		}
		raw, present := values[p.Name]
		raw = strings.TrimSpace(raw)
		if !present || raw == "" {
			continue
		}
		v, err := decimal.NewFromString(raw)
		if err != nil {
			verr.Add(p.Name, "must be a number")
			continue
		}
		if got := p.classify(v); got.Severity() > worst.Severity() {
			worst = got
		}
	}
	if err := verr.OrNil(); err != nil {
		return "", err
	}
	if manualCritical {
		return models.InterpretationCritical, nil
	}
	return worst, nil
}

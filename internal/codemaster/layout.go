package codemaster

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Layout describes where each code table lives in the workbook and which
// properties get enriched from it.
type Layout struct {
	Sheet  string  `yaml:"sheet"`
	Tables []Table `yaml:"tables"`
	Rules  []Rule  `yaml:"rules"`
}

// Table locates one code table. Rows are zero-based, FirstRow inclusive and
// LastRow exclusive. LastRow 0 reads to the end of the sheet.
type Table struct {
	Category    string `yaml:"category"`
	Sheet       string `yaml:"sheet,omitempty"` // defaults to Layout.Sheet
	CodeCol     int    `yaml:"code_col"`
	NameCol     int    `yaml:"name_col"`
	FirstRow    int    `yaml:"first_row"`
	LastRow     int    `yaml:"last_row"`
	NumericOnly bool   `yaml:"numeric_only"` // skip codes that are not digits
}

// Rule copies the name of the code found in Source into Target.
type Rule struct {
	Source   string `yaml:"source"`
	Target   string `yaml:"target"`
	Category string `yaml:"category"`
}

// Forest registry categories.
const (
	CategoryForestType = "森林の種類"
	CategoryStandType  = "林種"
	CategorySpecies    = "樹種"
)

// DefaultLayout is the layout of the prefectural forest registry code book.
func DefaultLayout() Layout {
	return Layout{
		Sheet: "コード一覧",
		Tables: []Table{
			{Category: CategoryForestType, CodeCol: 0, NameCol: 5, FirstRow: 14, LastRow: 40},
			{Category: CategoryStandType, CodeCol: 0, NameCol: 5, FirstRow: 41, LastRow: 50},
			{Category: CategorySpecies, CodeCol: 0, NameCol: 5, FirstRow: 53, LastRow: 84, NumericOnly: true},
			{Category: CategorySpecies, CodeCol: 25, NameCol: 30, FirstRow: 53, LastRow: 84, NumericOnly: true},
		},
		Rules: []Rule{
			{Source: "森林の種類1コード", Target: "森林の種類1名", Category: CategoryForestType},
			{Source: "林種コード", Target: "林種名", Category: CategoryStandType},
			{Source: "樹種1コード", Target: "樹種1名", Category: CategorySpecies},
		},
	}
}

// LoadLayout reads a layout from a YAML file with a top-level "codemaster" key.
func LoadLayout(path string) (Layout, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Layout{}, eris.Wrapf(err, "codemaster: read layout %s", path)
	}

	var wrapper struct {
		Codemaster Layout `yaml:"codemaster"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return Layout{}, eris.Wrap(err, "codemaster: parse layout")
	}

	l := wrapper.Codemaster
	if len(l.Tables) == 0 {
		return Layout{}, eris.Errorf("codemaster: layout %s defines no tables", path)
	}
	for i, t := range l.Tables {
		if t.Category == "" {
			return Layout{}, eris.Errorf("codemaster: table %d has no category", i)
		}
		if t.Sheet == "" {
			t.Sheet = l.Sheet
		}
		l.Tables[i] = t
	}
	return l, nil
}

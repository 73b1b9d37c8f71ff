package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// View is a saved series request for one table.
type View struct {
	X      string   `yaml:"x"`
	Y      []string `yaml:"y"`
	Labels []string `yaml:"labels"`
	Sort   bool     `yaml:"sort"`
	Filter string   `yaml:"filter"`
}

// Views holds the saved views, keyed by "table" or "experiment/table".
// An experiment-qualified entry wins over a bare table entry.
type Views struct {
	Tables map[string]View `yaml:"tables"`
}

// LoadViews reads a views file. An empty path yields no views; a path that
// does not exist is an error so typos in OML_VIEWS_FILE are noticed.
//
// Example:
//
//	tables:
//	  generator_sin:
//	    x: oml_ts_server
//	    y: [value]
//	    labels: [channel]
//	    sort: true
//	  exp1/generator_sin:
//	    filter: 'channel != "b"'
func LoadViews(path string) (*Views, error) {
	if path == "" {
		return &Views{Tables: map[string]View{}}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read views file: %w", err)
	}

	return ParseViews(data)
}

// ParseViews decodes views YAML. Unknown keys are rejected.
func ParseViews(data []byte) (*Views, error) {
	views := &Views{}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(views); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse views: %w", err)
	}

	if views.Tables == nil {
		views.Tables = map[string]View{}
	}
	return views, nil
}

// Lookup returns the saved view for a table of an experiment.
func (v *Views) Lookup(experiment, table string) (View, bool) {
	if v == nil {
		return View{}, false
	}
	if view, ok := v.Tables[experiment+"/"+table]; ok {
		return view, true
	}
	view, ok := v.Tables[table]
	return view, ok
}

package loader

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"roadplan/internal/model"
)

// CSV reads an edge list (from,to,time,capacity), a vehicle list
// (id,start,end,min,max) and, if NodesPath exists, node coordinates
// (id,x,y). Every file needs a header row; an empty max means no upper bound.
type CSV struct {
	EdgesPath    string
	VehiclesPath string
	NodesPath    string
}

func (c CSV) Name() string { return "csv:" + c.EdgesPath }

func (c CSV) Load(ctx context.Context) (Document, error) {
	var doc Document
	err := readCSV(c.EdgesPath, []string{"from", "to", "time", "capacity"}, func(line int, rec map[string]string) error {
		t, err := strconv.ParseFloat(rec["time"], 64)
		if err != nil {
			return fmt.Errorf("line %d: time: %w", line, err)
		}
		cp, err := strconv.Atoi(rec["capacity"])
		if err != nil {
			return fmt.Errorf("line %d: capacity: %w", line, err)
		}
		doc.Edges = append(doc.Edges, model.EdgeIn{From: rec["from"], To: rec["to"], Time: t, Capacity: cp})
		return ctx.Err()
	})
	if err != nil {
		return Document{}, fmt.Errorf("%s: %w", c.EdgesPath, err)
	}
	err = readCSV(c.VehiclesPath, []string{"start", "end"}, func(line int, rec map[string]string) error {
		v := model.VehicleIn{ID: rec["id"], Start: rec["start"], End: rec["end"]}
		if rec["min"] != "" || rec["max"] != "" {
			v.TimeWindow = &model.TimeWindow{}
			if rec["min"] != "" {
				f, err := strconv.ParseFloat(rec["min"], 64)
				if err != nil {
					return fmt.Errorf("line %d: min: %w", line, err)
				}
				v.TimeWindow.Min = f
			}
			if rec["max"] != "" {
				f, err := strconv.ParseFloat(rec["max"], 64)
				if err != nil {
					return fmt.Errorf("line %d: max: %w", line, err)
				}
				v.TimeWindow.Max = &f
			}
		}
		doc.Vehicles = append(doc.Vehicles, v)
		return ctx.Err()
	})
	if err != nil {
		return Document{}, fmt.Errorf("%s: %w", c.VehiclesPath, err)
	}
	if c.NodesPath == "" {
		return doc, nil
	}
	if _, err := os.Stat(c.NodesPath); errors.Is(err, fs.ErrNotExist) {
		return doc, nil
	}
	err = readCSV(c.NodesPath, []string{"id", "x", "y"}, func(line int, rec map[string]string) error {
		x, err := strconv.ParseFloat(rec["x"], 64)
		if err != nil {
			return fmt.Errorf("line %d: x: %w", line, err)
		}
		y, err := strconv.ParseFloat(rec["y"], 64)
		if err != nil {
			return fmt.Errorf("line %d: y: %w", line, err)
		}
		doc.Nodes = append(doc.Nodes, model.NodeIn{ID: rec["id"], X: x, Y: y})
		return ctx.Err()
	})
	if err != nil {
		return Document{}, fmt.Errorf("%s: %w", c.NodesPath, err)
	}
	return doc, nil
}

// readCSV calls fn for each data row keyed by lowercased header name.
func readCSV(path string, required []string, fn func(line int, rec map[string]string) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	r := csv.NewReader(f)
	r.TrimLeadingSpace = true
	r.Comment = '#'
	header, err := r.Read()
	if err != nil {
		return fmt.Errorf("header: %w", err)
	}
	for i := range header {
		header[i] = strings.ToLower(strings.TrimSpace(header[i]))
	}
	for _, want := range required {
		found := false
		for _, h := range header {
			found = found || h == want
		}
		if !found {
			return fmt.Errorf("missing column %q", want)
		}
	}
	r.FieldsPerRecord = len(header)
	for line := 2; ; line++ {
		row, err := r.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		rec := make(map[string]string, len(header))
		for i, h := range header {
			rec[h] = strings.TrimSpace(row[i])
		}
		if err := fn(line, rec); err != nil {
			return err
		}
	}
}

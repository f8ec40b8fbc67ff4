package apitest

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	v1 "github.com/acme/catalog-console/api/v1"
	"github.com/acme/catalog-console/internal/realtime"
)

type jobKind int

const (
	jobImport jobKind = iota
	jobBulkDelete
)

// importChunkSize is the number of rows between two progress updates.
const importChunkSize = 100

type job struct {
	kind    jobKind
	content []byte
}

func (s *Server) addJob(kind jobKind, content []byte) string {
	id := newJobID()
	s.mu.Lock()
	s.jobs[id] = &job{kind: kind, content: content}
	s.mu.Unlock()
	return id
}

// RunJob executes a pending job and emits its progress and outcome to the
// job's room. It returns an error only when the job does not exist.
func (s *Server) RunJob(id string) error {
	s.mu.Lock()
	j, ok := s.jobs[id]
	delete(s.jobs, id)
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("job %q not found", id)
	}

	switch j.kind {
	case jobImport:
		s.runImport(id, j.content)
	case jobBulkDelete:
		s.mu.Lock()
		n := len(s.products)
		s.products = nil
		s.mu.Unlock()
		s.Emit(id, realtime.EventTaskComplete, realtime.TaskComplete{Status: fmt.Sprintf("Successfully deleted %d products.", n)})
	}
	return nil
}

func (s *Server) runImport(id string, content []byte) {
	s.Emit(id, realtime.EventProgressUpdate, realtime.ProgressUpdate{Status: "Parsing CSV...", Progress: 0})

	records, err := parseProducts(content)
	if err != nil {
		s.Emit(id, realtime.EventTaskFailed, realtime.TaskFailed{Error: err.Error()})
		return
	}

	processed := 0
	for start := 0; start < len(records); start += importChunkSize {
		end := min(start+importChunkSize, len(records))
		s.mu.Lock()
		for _, p := range records[start:end] {
			s.insertProduct(p)
		}
		s.mu.Unlock()

		processed = end
		progress := math.Round(float64(processed) / float64(len(records)) * 100)
		s.Emit(id, realtime.EventProgressUpdate, realtime.ProgressUpdate{Status: "Importing...", Progress: progress})
	}

	s.Emit(id, realtime.EventTaskComplete, realtime.TaskComplete{Status: fmt.Sprintf("Import successful! %d records processed.", processed)})
}

// parseProducts reads a CSV whose header names at least a sku column.
// Headers are matched case-insensitively and skus are lowercased.
func parseProducts(content []byte) ([]v1.Product, error) {
	r := csv.NewReader(bytes.NewReader(content))
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("No columns to parse from file")
		}
		return nil, err
	}
	columns := map[string]int{}
	for i, h := range header {
		columns[strings.ToLower(strings.TrimSpace(h))] = i
	}
	skuCol, ok := columns["sku"]
	if !ok {
		return nil, errors.New("CSV is missing 'sku' column")
	}

	cell := func(row []string, name string) (string, bool) {
		i, ok := columns[name]
		if !ok || i >= len(row) || row[i] == "" {
			return "", false
		}
		return row[i], true
	}

	var products []v1.Product
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if skuCol >= len(row) {
			continue
		}
		p := v1.Product{Sku: strings.ToLower(row[skuCol]), Active: true}
		p.Name, _ = cell(row, "name")
		if d, ok := cell(row, "description"); ok {
			p.Description = &d
		}
		products = append(products, p)
	}
	return products, nil
}

package sheet

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// File is an excelize-backed Source over an .xlsx workbook.
type File struct {
	f *excelize.File
}

func Open(path string) (*File, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	return &File{f: f}, nil
}

func (s *File) Close() error { return s.f.Close() }

func (s *File) Sheets() []string { return s.f.GetSheetList() }

func (s *File) Rows(name string) ([]Row, error) {
	found := false
	for _, n := range s.f.GetSheetList() {
		if n == name {
			found = true
			break
		}
	}
	if !found {
		return nil, &NotFoundError{Sheet: name}
	}

	raw, err := s.f.GetRows(name)
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", name, err)
	}
	if len(raw) == 0 {
		return nil, nil
	}

	header := make([]string, len(raw[0]))
	for i, label := range raw[0] {
		header[i] = strings.TrimSpace(label)
	}

	rows := make([]Row, 0, len(raw)-1)
	for _, rec := range raw[1:] {
		row := make(Row, len(header))
		for i, label := range header {
			if label == "" {
				continue
			}
			if i < len(rec) {
				row[label] = String(rec[i])
			} else {
				row[label] = Empty()
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

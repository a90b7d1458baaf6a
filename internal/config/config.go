// Package config turns on-disk CSV allow-lists and a format declaration
// into the already-parsed arguments the core package boundary expects.
// Command-line flag parsing and CSV loading sit outside the pipeline's
// core contract by design; this package is the thin glue cmd/barseq
// uses to get there.
package config

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"

	"barseq/internal/format"
	"barseq/internal/pipelineerr"
)

var widthToken = regexp.MustCompile(`[\[{]\d+[\]}]`)

// LoadFormat compiles a format declaration read from path.
func LoadFormat(path string) (*format.Format, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, pipelineerr.Wrap(pipelineerr.IO, "reading format declaration", err)
	}
	return format.Compile(string(raw))
}

// LoadSampleAllowList parses a sample allow-list CSV: header row
// discarded, each row dna_barcode,sample_id[,...]. Only the first two
// columns are used; a repeated dna_barcode overwrites the earlier row.
// An empty path means "no sample allow-list" (accept any).
func LoadSampleAllowList(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	rows, err := readCSVBody(path)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(rows))
	for _, row := range rows {
		if len(row) < 2 {
			continue
		}
		out[row[0]] = row[1]
	}
	return out, nil
}

// LoadCountedAllowList parses a counted-barcode allow-list CSV: header
// row discarded, each row dna_barcode,ligand_id,position where position
// is 1-based and must fall within 1..barcodeCount. Loading fails if any
// position in 1..barcodeCount never appears, or the position column
// isn't an integer.
func LoadCountedAllowList(path string, barcodeCount int) ([]map[string]string, error) {
	tables := make([]map[string]string, barcodeCount)
	for i := range tables {
		tables[i] = map[string]string{}
	}
	if path == "" {
		return tables, nil
	}

	rows, err := readCSVBody(path)
	if err != nil {
		return nil, err
	}
	seen := make([]bool, barcodeCount)
	for _, row := range rows {
		if len(row) < 3 {
			continue
		}
		pos, err := strconv.Atoi(row[2])
		if err != nil {
			return nil, pipelineerr.Wrap(pipelineerr.Configuration, fmt.Sprintf("counted allow-list position %q is not an integer", row[2]), err)
		}
		if pos < 1 || pos > barcodeCount {
			return nil, pipelineerr.New(pipelineerr.Configuration, fmt.Sprintf("counted allow-list position %d out of range 1..%d", pos, barcodeCount))
		}
		tables[pos-1][row[0]] = row[1]
		seen[pos-1] = true
	}
	for i, ok := range seen {
		if !ok {
			return nil, pipelineerr.New(pipelineerr.Configuration, fmt.Sprintf("counted allow-list missing any rows for position %d", i+1))
		}
	}
	return tables, nil
}

func readCSVBody(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, pipelineerr.Wrap(pipelineerr.IO, "opening allow-list CSV", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	if _, err := r.Read(); err != nil && err != io.EOF {
		return nil, pipelineerr.Wrap(pipelineerr.IO, "reading allow-list header", err)
	}
	var rows [][]string
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, pipelineerr.Wrap(pipelineerr.IO, "reading allow-list row", err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// RegionWidths derives (constant length, sample width, per-barcode
// widths) from a compiled Format's declaration string, for feeding
// allowlists.NewMaxErrors its default-derivation lengths. Wildcard
// positions are excluded from the constant length: they can never
// mismatch the skeleton, so they carry no share of the error budget.
func RegionWidths(f *format.Format) (constantLen, sampleLen int, barcodeLens []int) {
	constantLen = 0
	for _, r := range f.ConstantSkeleton {
		if r != 'N' {
			constantLen++
		}
	}
	for _, tok := range widthToken.FindAllString(f.FormatString, -1) {
		n, _ := strconv.Atoi(tok[1 : len(tok)-1])
		switch tok[0] {
		case '[':
			sampleLen = n
		case '{':
			barcodeLens = append(barcodeLens, n)
		}
	}
	return constantLen, sampleLen, barcodeLens
}

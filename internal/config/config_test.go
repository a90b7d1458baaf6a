package config

import (
	"os"
	"path/filepath"
	"testing"

	"barseq/internal/format"
)

func writeCSV(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadSampleAllowList(t *testing.T) {
	path := writeCSV(t, "samples.csv", "dna_barcode,sample_id\nAAAA,S1\nTTTT,S2\n")
	samples, err := LoadSampleAllowList(path)
	if err != nil {
		t.Fatal(err)
	}
	if samples["AAAA"] != "S1" || samples["TTTT"] != "S2" {
		t.Fatalf("unexpected samples: %+v", samples)
	}
}

func TestLoadSampleAllowListEmptyPathMeansAcceptAny(t *testing.T) {
	samples, err := LoadSampleAllowList("")
	if err != nil || samples != nil {
		t.Fatalf("expected nil, nil; got %+v, %v", samples, err)
	}
}

func TestLoadCountedAllowListRejectsMissingPosition(t *testing.T) {
	path := writeCSV(t, "counted.csv", "dna_barcode,ligand_id,position\nAAA,L1,1\n")
	_, err := LoadCountedAllowList(path, 2)
	if err == nil {
		t.Fatal("expected error for missing position 2")
	}
}

func TestLoadCountedAllowListRejectsNonIntegerPosition(t *testing.T) {
	path := writeCSV(t, "counted.csv", "dna_barcode,ligand_id,position\nAAA,L1,x\n")
	_, err := LoadCountedAllowList(path, 1)
	if err == nil {
		t.Fatal("expected error for non-integer position")
	}
}

func TestLoadCountedAllowListParsesPositions(t *testing.T) {
	path := writeCSV(t, "counted.csv", "dna_barcode,ligand_id,position\nAAA,L1,1\nCCC,L2,1\nGGG,L3,2\n")
	tables, err := LoadCountedAllowList(path, 2)
	if err != nil {
		t.Fatal(err)
	}
	if tables[0]["AAA"] != "L1" || tables[0]["CCC"] != "L2" {
		t.Fatalf("unexpected position-1 table: %+v", tables[0])
	}
	if tables[1]["GGG"] != "L3" {
		t.Fatalf("unexpected position-2 table: %+v", tables[1])
	}
}

func TestRegionWidths(t *testing.T) {
	f, err := format.Compile("[4]ACGT{3}TT(2)")
	if err != nil {
		t.Fatal(err)
	}
	constantLen, sampleLen, barcodeLens := RegionWidths(f)
	if sampleLen != 4 {
		t.Errorf("sampleLen = %d, want 4", sampleLen)
	}
	if len(barcodeLens) != 1 || barcodeLens[0] != 3 {
		t.Errorf("barcodeLens = %v, want [3]", barcodeLens)
	}
	if constantLen != 6 { // ACGT + TT
		t.Errorf("constantLen = %d, want 6", constantLen)
	}
}

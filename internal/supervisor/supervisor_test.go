package supervisor

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"barseq/internal/allowlists"
	"barseq/internal/format"
)

func writeFastq(t *testing.T, records ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "reads.fastq")
	content := ""
	for i, seq := range records {
		content += "@r" + string(rune('0'+i)) + "\n" + seq + "\n+\n" + qualAllHigh(len(seq)) + "\n"
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func qualAllHigh(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = '~'
	}
	return string(b)
}

func TestRunEndToEndCountMode(t *testing.T) {
	f, err := format.Compile("[4]ACGT{3}TT(2)")
	if err != nil {
		t.Fatal(err)
	}
	al := allowlists.New(
		map[string]string{"AAAA": "S1", "TTTT": "S2"},
		[]map[string]string{{"AAA": "L1", "CCC": "L2"}},
	)
	one := 1
	me, err := allowlists.NewMaxErrors(f.PatternLength, 4, []int{3}, &one, &one, []*int{&one}, 0)
	if err != nil {
		t.Fatal(err)
	}

	path := writeFastq(t,
		"AAAAACGTAAATTGG", // sample S1, barcode L1
		"TTTTACGTCCCTTAC", // sample S2, barcode L2
		"GGGGACGTAAATTGG", // uncorrectable sample
	)

	cfg := Config{
		FastqPath:  path,
		Format:     f,
		AllowLists: al,
		MaxErrors:  me,
		Threads:    2,
	}
	outcome, err := Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if outcome.TotalReads != 3 {
		t.Fatalf("TotalReads = %d, want 3", outcome.TotalReads)
	}
	if outcome.Errors.Matched != 2 {
		t.Fatalf("Matched = %d, want 2", outcome.Errors.Matched)
	}
	if outcome.Errors.SampleBarcode != 1 {
		t.Fatalf("SampleBarcode = %d, want 1", outcome.Errors.SampleBarcode)
	}
	if outcome.Results.Buckets["AAAA"]["AAA"] != 1 {
		t.Fatalf("unexpected buckets: %+v", outcome.Results.Buckets)
	}
	if outcome.Results.Buckets["TTTT"]["CCC"] != 1 {
		t.Fatalf("unexpected buckets: %+v", outcome.Results.Buckets)
	}
}

func TestRunUniqueModeDeduplicatesAcrossWorkers(t *testing.T) {
	f, err := format.Compile("[4]ACGT{3}TT(2)")
	if err != nil {
		t.Fatal(err)
	}
	al := allowlists.New(map[string]string{"AAAA": "S1"}, []map[string]string{{"AAA": "L1"}})
	one := 1
	me, err := allowlists.NewMaxErrors(f.PatternLength, 4, []int{3}, &one, &one, []*int{&one}, 0)
	if err != nil {
		t.Fatal(err)
	}

	path := writeFastq(t,
		"AAAAACGTAAATTGG",
		"AAAAACGTAAATTGG", // identical read and UMI: duplicate
		"AAAAACGTAAATTAC", // distinct UMI: novel
	)

	cfg := Config{
		FastqPath:          path,
		Format:             f,
		AllowLists:         al,
		MaxErrors:          me,
		Threads:            2,
		EnforceRandomDedup: true,
	}
	outcome, err := Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if outcome.Errors.Matched != 2 {
		t.Fatalf("Matched = %d, want 2 (distinct UMIs)", outcome.Errors.Matched)
	}
	if outcome.Errors.Duplicates != 1 {
		t.Fatalf("Duplicates = %d, want 1", outcome.Errors.Duplicates)
	}
	if outcome.Results.Buckets["AAAA"]["AAA"] != 2 {
		t.Fatalf("expected reported count 2, got %d", outcome.Results.Buckets["AAAA"]["AAA"])
	}
}

func TestRunMissingFileReturnsErrorAndEmptyOutcome(t *testing.T) {
	f, err := format.Compile("[4]ACGT{3}TT(2)")
	if err != nil {
		t.Fatal(err)
	}
	al := allowlists.New(nil, nil)
	me, err := allowlists.NewMaxErrors(f.PatternLength, 4, []int{3}, nil, nil, nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	cfg := Config{
		FastqPath:  filepath.Join(t.TempDir(), "missing.fastq"),
		Format:     f,
		AllowLists: al,
		MaxErrors:  me,
		Threads:    1,
	}
	outcome, err := Run(context.Background(), cfg)
	if err == nil {
		t.Fatal("expected error for missing input file")
	}
	if outcome.TotalReads != 0 {
		t.Fatal("expected zero-value Outcome on error")
	}
}

func TestRunDynamicStoreAcceptsUnlistedSamples(t *testing.T) {
	f, err := format.Compile("[4]ACGT{3}TT(2)")
	if err != nil {
		t.Fatal(err)
	}
	al := allowlists.New(nil, nil) // no sample allow-list: any decoded sample accepted
	me, err := allowlists.NewMaxErrors(f.PatternLength, 4, []int{3}, nil, nil, nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	path := writeFastq(t, "GGGGACGTAAATTGG")

	cfg := Config{
		FastqPath:  path,
		Format:     f,
		AllowLists: al,
		MaxErrors:  me,
		Threads:    1,
	}
	outcome, err := Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if outcome.Results.Buckets["GGGG"]["AAA"] != 1 {
		t.Fatalf("expected dynamic sample bucket, got %+v", outcome.Results.Buckets)
	}
}

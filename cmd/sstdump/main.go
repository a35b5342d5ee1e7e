// Package main provides the sstdump CLI tool for inspecting tephra SST
// files.
//
// Usage:
//
//	sstdump --file=<path> [--command=meta|layout|check]
//
// Commands:
//
//	meta     Show the decoded footer metadata (default)
//	layout   Show each row group's physical row and column counts (chunk sizes are not shown)
//	check    Verify every chunk checksum by reading the whole file
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/tephradb/tephra/internal/sst"
)

var (
	filePath = flag.String("file", "", "Path to the SST file (required)")
	command  = flag.String("command", "meta", "Command: meta, layout, check")
)

func main() {
	flag.Parse()

	if *filePath == "" {
		fmt.Fprintln(os.Stderr, "Error: --file flag is required")
		flag.Usage()
		os.Exit(1)
	}

	data, err := os.ReadFile(*filePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: read %s: %v\n", *filePath, err)
		os.Exit(1)
	}

	reader, err := sst.OpenReader(data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: open %s: %v\n", *filePath, err)
		os.Exit(1)
	}

	switch *command {
	case "meta":
		err = cmdMeta(reader)
	case "layout":
		err = cmdLayout(reader)
	case "check":
		err = cmdCheck(reader)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", *command)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func cmdMeta(r *sst.Reader) error {
	meta := r.MetaData()
	fmt.Printf("min_key: %q\n", meta.MinKey)
	fmt.Printf("max_key: %q\n", meta.MaxKey)
	fmt.Printf("time_range: [%d, %d)\n", meta.TimeRange.InclusiveStart, meta.TimeRange.ExclusiveEnd)
	fmt.Printf("max_sequence: %d\n", meta.MaxSequence)
	fmt.Printf("row_num: %d\n", meta.RowNum)
	fmt.Printf("size: %d\n", meta.Size)
	fmt.Printf("storage_format: %s\n", meta.StorageFormatOpts.Format)
	if len(meta.StorageFormatOpts.CollapsibleColsIdx) > 0 {
		fmt.Printf("collapsible_cols_idx: %v\n", meta.StorageFormatOpts.CollapsibleColsIdx)
	}
	fmt.Printf("bloom_filter: %d bytes\n", len(meta.BloomFilter))

	fmt.Printf("schema (%d columns, tsid_idx=%d):\n", meta.Schema.NumColumns(), meta.Schema.TsidIndex())
	for i, col := range meta.Schema.Columns() {
		flags := ""
		if col.Collapsible {
			flags = " collapsible"
		}
		if i == meta.Schema.TsidIndex() {
			flags += " tsid"
		}
		fmt.Printf("  %2d: %s %s%s\n", i, col.Name, col.Type, flags)
	}
	return nil
}

func cmdLayout(r *sst.Reader) error {
	fmt.Printf("row_groups: %d\n", r.NumRowGroups())
	for i := 0; i < r.NumRowGroups(); i++ {
		batch, err := r.RowGroup(i)
		if err != nil {
			return err
		}
		fmt.Printf("  group %d: %d physical rows, %d columns\n", i, batch.NumRows(), batch.NumColumns())
	}
	return nil
}

func cmdCheck(r *sst.Reader) error {
	decoder := sst.NewRecordDecoder(r.MetaData().StorageFormatOpts)
	logicalRows := 0
	for i := 0; i < r.NumRowGroups(); i++ {
		batch, err := r.RowGroup(i)
		if err != nil {
			return fmt.Errorf("row group %d: %w", i, err)
		}
		decoded, err := decoder.Decode(batch)
		if err != nil {
			return fmt.Errorf("decode row group %d: %w", i, err)
		}
		logicalRows += decoded.NumRows()
	}
	fmt.Printf("OK: %d row groups, %d logical rows\n", r.NumRowGroups(), logicalRows)
	return nil
}

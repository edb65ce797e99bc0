package script

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/jszwec/csvutil"
)

type statsRow struct {
	Table         string `csv:"table"`
	Kind          string `csv:"kind"`
	Storage       string `csv:"storage"`
	Size          int    `csv:"size"`
	Maximum       string `csv:"maximum"`
	LazyInit      bool   `csv:"lazy init"`
	Touched       uint   `csv:"touched slots"`
	Grows         int    `csv:"grows"`
	RejectedGrows int    `csv:"rejected grows"`
}

// WriteStats writes one CSV row of statistics for each of the result's tables.
func WriteStats(w io.Writer, result *Result) error {
	csvWriter := csv.NewWriter(w)
	defer csvWriter.Flush()

	encoder := csvutil.NewEncoder(csvWriter)
	if err := encoder.EncodeHeader(statsRow{}); err != nil {
		return err
	}
	for _, t := range result.Tables {
		storage := "dynamic"
		if t.Table.IsStatic() {
			storage = "static"
		}
		maximum := "unbounded"
		if max, ok := t.Table.Maximum(); ok {
			maximum = strconv.Itoa(max)
		}

		err := encoder.Encode(statsRow{
			Table:         t.Name,
			Kind:          t.Table.ElementType().String(),
			Storage:       storage,
			Size:          t.Table.Size(),
			Maximum:       maximum,
			LazyInit:      t.Table.LazyInit(),
			Touched:       t.Touched.Count(),
			Grows:         t.Grows,
			RejectedGrows: t.RejectedGrows,
		})
		if err != nil {
			return err
		}
	}
	csvWriter.Flush()
	return csvWriter.Error()
}

type dumpRow struct {
	Table string `csv:"table"`
	Index int    `csv:"index"`
	Value string `csv:"value"`
}

// WriteDump writes one CSV row for each slot of each of the result's tables.
func WriteDump(w io.Writer, result *Result) error {
	csvWriter := csv.NewWriter(w)
	defer csvWriter.Flush()

	encoder := csvutil.NewEncoder(csvWriter)
	if err := encoder.EncodeHeader(dumpRow{}); err != nil {
		return err
	}
	for _, t := range result.Tables {
		for i := 0; i < t.Table.Size(); i++ {
			e, _ := t.Table.Get(result.Heap, uint64(i))
			value := formatElement(e, result.names)
			if ref, ok := e.GcRef(); ok {
				result.Heap.DropGcRef(ref)
			}

			if err := encoder.Encode(dumpRow{Table: t.Name, Index: i, Value: value}); err != nil {
				return err
			}
		}
	}
	csvWriter.Flush()
	return csvWriter.Error()
}

// WriteOutputs writes the outputs of a script as CSV.
func WriteOutputs(w io.Writer, result *Result) error {
	csvWriter := csv.NewWriter(w)
	defer csvWriter.Flush()

	encoder := csvutil.NewEncoder(csvWriter)
	if err := encoder.EncodeHeader(Output{}); err != nil {
		return err
	}
	for _, o := range result.Outputs {
		if err := encoder.Encode(o); err != nil {
			return err
		}
	}
	csvWriter.Flush()
	return csvWriter.Error()
}

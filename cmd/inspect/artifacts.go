package main

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"

	"github.com/objones25/oncoclip/internal/training"
)

// inspectCheckpoint prints one weight file's parameters with their shapes
// and Frobenius norms.
func inspectCheckpoint(path string) error {
	ckpt, err := training.LoadCheckpoint(path)
	if err != nil {
		return err
	}

	fmt.Printf("%s\n  modality %s, epoch %d, loss %.6f\n", path, ckpt.Modality, ckpt.Epoch, ckpt.Loss)
	var total int
	for _, w := range ckpt.Weights {
		var sq float64
		for _, v := range w.Data {
			sq += v * v
		}
		fmt.Printf("  %-24s %4dx%-4d  norm %.4f\n", w.Name, w.Rows, w.Cols, math.Sqrt(sq))
		total += w.Rows * w.Cols
	}
	fmt.Printf("  %d parameters\n", total)
	return nil
}

// inspectDump prints an embedding CSV's column layout and split sizes.
func inspectDump(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return err
	}

	var train, test int
	for {
		rec, err := r.Read()
		if err != nil {
			break
		}
		if len(rec) > 1 && rec[1] == "1" {
			test++
		} else {
			train++
		}
	}

	fmt.Printf("%s\n  %d columns, %d train rows, %d test rows\n", path, len(header), train, test)
	if len(header) > 2 {
		fmt.Printf("  first feature column %s, last %s\n", header[2], header[len(header)-1])
	}
	return nil
}

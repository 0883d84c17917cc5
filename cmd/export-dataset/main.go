// Command export-dataset flattens decision logs into a compact supervised
// dataset: a 13-feature row and an action class label per decision, written
// as safetensors plus a JSON metadata file.
package main

import (
	"flag"
	"fmt"
	"log"
	"sort"

	"github.com/colesmailbox96-tech/Brain/internal/dataset"
	"github.com/colesmailbox96-tech/Brain/internal/encode"
	"github.com/colesmailbox96-tech/Brain/internal/export"
)

func main() {
	logDir := flag.String("log-dir", "data_logs", "directory containing decisions_*.jsonl files")
	outDir := flag.String("output-dir", "training_data", "directory for the exported dataset")
	stats := flag.Bool("stats", false, "print dataset statistics after export")
	flag.Parse()

	fd := &export.FlatDataset{}
	var actionCounts [encode.NumActions]int
	var hungerSum, energySum, socialSum float64

	skipped, err := dataset.Scan(*logDir, func(entry *encode.LogEntry) {
		if entry.Perception == nil || entry.Perception.Needs == nil || entry.Decision == nil {
			return
		}
		fd.Append(entry.Perception, entry.Decision.Type)
		actionCounts[encode.EncodeAction(entry.Decision.Type)]++
		hungerSum += float64(entry.Perception.Needs.Hunger)
		energySum += float64(entry.Perception.Needs.Energy)
		socialSum += float64(entry.Perception.Needs.Social)
	})
	if err != nil {
		log.Fatalf("scan logs: %v", err)
	}

	n := len(fd.Labels)
	fmt.Printf("Collected %d samples (%d lines skipped)\n", n, skipped)
	if n == 0 {
		log.Fatalf("no decisions found in %s", *logDir)
	}

	if err := export.WriteDataset(fd, *outDir); err != nil {
		log.Fatalf("write dataset: %v", err)
	}
	fmt.Printf("Dataset written to %s/\n", *outDir)

	if *stats {
		fmt.Println("\nAction distribution:")
		type actionCount struct {
			label int
			count int
		}
		counts := make([]actionCount, 0, encode.NumActions)
		for label, count := range actionCounts {
			if count > 0 {
				counts = append(counts, actionCount{label, count})
			}
		}
		sort.Slice(counts, func(i, j int) bool { return counts[i].count > counts[j].count })
		for _, ac := range counts {
			fmt.Printf("  %-14s %6d (%.1f%%)\n", encode.ActionName(ac.label), ac.count, 100*float64(ac.count)/float64(n))
		}
		fmt.Println("\nAverage needs:")
		fmt.Printf("  hunger %.3f  energy %.3f  social %.3f\n",
			hungerSum/float64(n), energySum/float64(n), socialSum/float64(n))
	}
}

package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"strconv"
	"strings"

	"FlowSentry/internal/model"
	"FlowSentry/internal/vote"
)

// fs-tune sweeps the voting threshold over a CSV of per-model attack
// probabilities and reports how the verdict distribution shifts. When the
// input carries a ground-truth label column it also reports precision and
// recall per threshold, which is what actually picks the operating point.
func main() {
	input := flag.String("input", "", "CSV file: one column per model probability, optional 'label' column (BENIGN/ATTACK).")
	thresholdsArg := flag.String("thresholds", "0.3,0.4,0.5,0.6,0.7,0.8,0.9", "Comma-separated thresholds to evaluate.")
	voteK := flag.Int("vote-k", 1, "Minimum attack votes required for an ATTACK verdict.")
	flag.Parse()

	if *input == "" {
		fmt.Fprintln(os.Stderr, "Usage: fs-tune -input <probabilities.csv> [-thresholds 0.3,0.5,0.7] [-vote-k 2]")
		os.Exit(1)
	}

	thresholds, err := parseThresholds(*thresholdsArg)
	if err != nil {
		log.Fatalf("Invalid thresholds: %v", err)
	}

	rows, labels, modelNames, err := readProbabilities(*input)
	if err != nil {
		log.Fatalf("Failed to read input: %v", err)
	}
	log.Printf("Loaded %d rows across models %v (labeled: %t)", len(rows), modelNames, labels != nil)

	type tally struct {
		attacks int
		tp, fp  int
		tn, fn  int
	}
	counts := make(map[float64]*tally, len(thresholds))
	for _, t := range thresholds {
		counts[t] = &tally{}
	}

	for i, probs := range rows {
		results := vote.DecideMulti(probs, thresholds, *voteK)
		for t, res := range results {
			c := counts[t]
			predicted := res.FinalLabel == model.LabelAttack
			if predicted {
				c.attacks++
			}
			if labels == nil {
				continue
			}
			actual := labels[i]
			switch {
			case predicted && actual:
				c.tp++
			case predicted && !actual:
				c.fp++
			case !predicted && actual:
				c.fn++
			default:
				c.tn++
			}
		}
	}

	sort.Float64s(thresholds)
	if labels != nil {
		fmt.Printf("%-10s %-8s %-8s %-10s %-10s %-10s\n", "threshold", "vote_k", "attacks", "precision", "recall", "f1")
	} else {
		fmt.Printf("%-10s %-8s %-8s %-12s\n", "threshold", "vote_k", "attacks", "attack_rate")
	}
	for _, t := range thresholds {
		c := counts[t]
		if labels != nil {
			precision := safeDiv(float64(c.tp), float64(c.tp+c.fp))
			recall := safeDiv(float64(c.tp), float64(c.tp+c.fn))
			f1 := safeDiv(2*precision*recall, precision+recall)
			fmt.Printf("%-10.2f %-8d %-8d %-10.4f %-10.4f %-10.4f\n", t, *voteK, c.attacks, precision, recall, f1)
		} else {
			rate := safeDiv(float64(c.attacks), float64(len(rows)))
			fmt.Printf("%-10.2f %-8d %-8d %-12.4f\n", t, *voteK, c.attacks, rate)
		}
	}
}

func parseThresholds(s string) ([]float64, error) {
	var out []float64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		t, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return nil, fmt.Errorf("parse %q: %w", part, err)
		}
		if t < 0 || t > 1 {
			return nil, fmt.Errorf("threshold %v out of range [0,1]", t)
		}
		out = append(out, t)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no thresholds given")
	}
	return out, nil
}

// readProbabilities parses the CSV into one probability map per row. The
// returned labels slice is nil when the file has no 'label' column.
func readProbabilities(path string) ([]map[string]float64, []bool, []string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, nil, err
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, nil, nil, err
	}
	if len(records) < 2 {
		return nil, nil, nil, fmt.Errorf("input needs a header row and at least one data row")
	}

	header := records[0]
	labelCol := -1
	var modelNames []string
	for i, name := range header {
		if strings.EqualFold(strings.TrimSpace(name), "label") {
			labelCol = i
			continue
		}
		modelNames = append(modelNames, strings.TrimSpace(name))
	}
	if len(modelNames) == 0 {
		return nil, nil, nil, fmt.Errorf("no model columns in header")
	}

	var rows []map[string]float64
	var labels []bool
	for lineNo, record := range records[1:] {
		if len(record) != len(header) {
			return nil, nil, nil, fmt.Errorf("row %d has %d fields, want %d", lineNo+2, len(record), len(header))
		}
		probs := make(map[string]float64, len(modelNames))
		for i, field := range record {
			if i == labelCol {
				continue
			}
			p, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				return nil, nil, nil, fmt.Errorf("row %d column %q: %w", lineNo+2, header[i], err)
			}
			probs[strings.TrimSpace(header[i])] = p
		}
		rows = append(rows, probs)
		if labelCol >= 0 {
			labels = append(labels, strings.EqualFold(strings.TrimSpace(record[labelCol]), string(model.LabelAttack)))
		}
	}
	return rows, labels, modelNames, nil
}

func safeDiv(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return a / b
}

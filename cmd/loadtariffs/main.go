// Tariff table import tool.
//
// Usage:
//   go run cmd/loadtariffs/main.go -csv /path/to/tariffs.csv -url http://localhost:8080
//
// This tool:
//   1. Reads tariff rules from a CSV export (one rule per row)
//   2. Sends each rule to the chiffrage tariff API
//   3. Reports how many rules were accepted and rejected
//
// CSV columns: id,kind,vehicle_category,min,max,value,unit,guard
// The min/max columns bind to the range matching the kind: vehicle age
// for depreciation, kilometers for travel_fee, fee basis for
// professional_fee. Leave them empty for hourly_rate rows and for open
// bounds.
package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// TariffRow is one parsed CSV row.
type TariffRow struct {
	ID              string
	Kind            string
	VehicleCategory string
	Min             *float64
	Max             *float64
	Value           float64
	Unit            string
	Guard           string
}

// CreateTariffRequest mirrors the API request body.
type CreateTariffRequest struct {
	ID              string   `json:"id,omitempty"`
	Kind            string   `json:"kind"`
	VehicleCategory string   `json:"vehicleCategory,omitempty"`
	AgeMin          *float64 `json:"ageMin,omitempty"`
	AgeMax          *float64 `json:"ageMax,omitempty"`
	KmMin           *float64 `json:"kmMin,omitempty"`
	KmMax           *float64 `json:"kmMax,omitempty"`
	AmountMin       *float64 `json:"amountMin,omitempty"`
	AmountMax       *float64 `json:"amountMax,omitempty"`
	Value           float64  `json:"value"`
	Unit            string   `json:"unit"`
	Guard           string   `json:"guard,omitempty"`
}

func main() {
	csvPath := flag.String("csv", "", "Path to tariff CSV file")
	baseURL := flag.String("url", "http://localhost:8080", "chiffrage base URL")
	workers := flag.Int("workers", 4, "Number of concurrent workers")
	dryRun := flag.Bool("dry-run", false, "Parse and validate without sending")
	verbose := flag.Bool("verbose", false, "Print each rule result")
	flag.Parse()

	if *csvPath == "" {
		fmt.Println("Usage: loadtariffs -csv /path/to/tariffs.csv [-url http://localhost:8080]")
		flag.PrintDefaults()
		os.Exit(1)
	}

	rows, errs := readRows(*csvPath)
	if len(errs) > 0 {
		for _, err := range errs {
			fmt.Fprintf(os.Stderr, "skipping row: %v\n", err)
		}
	}
	fmt.Printf("parsed %d tariff rules from %s (%d rows skipped)\n", len(rows), *csvPath, len(errs))

	if *dryRun {
		for _, row := range rows {
			fmt.Printf("  %-16s %-18s %s\n", row.ID, row.Kind, formatRange(row))
		}
		return
	}

	start := time.Now()
	var accepted, rejected atomic.Int64

	jobs := make(chan TariffRow)
	var wg sync.WaitGroup
	client := &http.Client{Timeout: 10 * time.Second}

	for i := 0; i < *workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for row := range jobs {
				status, body := sendRule(client, *baseURL, row)
				if status == http.StatusCreated {
					accepted.Add(1)
					if *verbose {
						fmt.Printf("  OK   %s (%s)\n", row.ID, row.Kind)
					}
				} else {
					rejected.Add(1)
					fmt.Fprintf(os.Stderr, "  FAIL %s (%s): %d %s\n", row.ID, row.Kind, status, strings.TrimSpace(body))
				}
			}
		}()
	}

	for _, row := range rows {
		jobs <- row
	}
	close(jobs)
	wg.Wait()

	fmt.Printf("\nimported %d rules, %d rejected in %s\n",
		accepted.Load(), rejected.Load(), time.Since(start).Round(time.Millisecond))

	if rejected.Load() > 0 {
		os.Exit(1)
	}
}

// readRows parses the CSV file, returning valid rows and per-row errors.
func readRows(path string) ([]TariffRow, []error) {
	f, err := os.Open(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open %s: %v\n", path, err)
		os.Exit(1)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	var rows []TariffRow
	var errs []error

	line := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			errs = append(errs, fmt.Errorf("line %d: %w", line, err))
			continue
		}

		// Header row
		if line == 1 && strings.EqualFold(record[0], "id") {
			continue
		}

		row, err := parseRow(record)
		if err != nil {
			errs = append(errs, fmt.Errorf("line %d: %w", line, err))
			continue
		}
		rows = append(rows, row)
	}

	return rows, errs
}

func parseRow(record []string) (TariffRow, error) {
	if len(record) < 7 {
		return TariffRow{}, fmt.Errorf("expected at least 7 columns, got %d", len(record))
	}

	value, err := strconv.ParseFloat(strings.TrimSpace(record[5]), 64)
	if err != nil {
		return TariffRow{}, fmt.Errorf("bad value %q: %w", record[5], err)
	}

	row := TariffRow{
		ID:              strings.TrimSpace(record[0]),
		Kind:            strings.TrimSpace(record[1]),
		VehicleCategory: strings.TrimSpace(record[2]),
		Value:           value,
		Unit:            strings.TrimSpace(record[6]),
	}

	if row.Min, err = parseBound(record[3]); err != nil {
		return TariffRow{}, fmt.Errorf("bad min %q: %w", record[3], err)
	}
	if row.Max, err = parseBound(record[4]); err != nil {
		return TariffRow{}, fmt.Errorf("bad max %q: %w", record[4], err)
	}
	if len(record) > 7 {
		row.Guard = strings.TrimSpace(record[7])
	}

	return row, nil
}

// parseBound parses an optional range bound; empty means unbounded.
func parseBound(s string) (*float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func sendRule(client *http.Client, baseURL string, row TariffRow) (int, string) {
	req := CreateTariffRequest{
		ID:              row.ID,
		Kind:            row.Kind,
		VehicleCategory: row.VehicleCategory,
		Value:           row.Value,
		Unit:            row.Unit,
		Guard:           row.Guard,
	}

	// Bind the range columns to the fields the kind resolves on.
	switch row.Kind {
	case "depreciation":
		req.AgeMin, req.AgeMax = row.Min, row.Max
	case "travel_fee":
		req.KmMin, req.KmMax = row.Min, row.Max
	case "professional_fee":
		req.AmountMin, req.AmountMax = row.Min, row.Max
	}

	body, _ := json.Marshal(req)
	resp, err := client.Post(baseURL+"/v1/tariffs", "application/json", bytes.NewReader(body))
	if err != nil {
		return 0, err.Error()
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return resp.StatusCode, string(respBody)
}

func formatRange(row TariffRow) string {
	format := func(b *float64) string {
		if b == nil {
			return "-"
		}
		return strconv.FormatFloat(*b, 'g', -1, 64)
	}
	if row.Kind == "hourly_rate" {
		return fmt.Sprintf("category=%s value=%g %s", row.VehicleCategory, row.Value, row.Unit)
	}
	return fmt.Sprintf("[%s, %s) value=%g %s", format(row.Min), format(row.Max), row.Value, row.Unit)
}

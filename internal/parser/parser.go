// Package parser extracts payout events from pool console output and decodes
// the pool's on-disk stats file and the miner's HTTP summary JSON — the
// Telemetry Parser component of spec §4.2.
package parser

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strconv"

	"minesup/internal/telemetry"
)

// payoutPattern matches lines like "You received a payout of 5.0 XMR in
// block 123", grounded directly on the original P2poolRegex pattern.
var payoutPattern = regexp.MustCompile(`You received a payout of ([0-9]+\.[0-9]+) XMR`)

// ParsePayouts scans text for payout lines, returning the count found and
// the sum of their XMR amounts. A line whose float fails to parse is logged
// and skipped; it is not a fatal error for the caller.
func ParsePayouts(text string, logger *slog.Logger) (count uint64, sum float64) {
	matches := payoutPattern.FindAllStringSubmatch(text, -1)
	for _, m := range matches {
		v, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			if logger != nil {
				logger.Warn("payout parse failed", "text", m[0], "error", err)
			}
			continue
		}
		count++
		sum += v
	}
	return count, sum
}

// PoolStatsFile is the JSON shape at <data-api>/local/stats (spec §6).
// Integer fields except the two effort percentages.
type PoolStatsFile struct {
	Hashrate15m   uint64  `json:"hashrate_15m"`
	Hashrate1h    uint64  `json:"hashrate_1h"`
	Hashrate24h   uint64  `json:"hashrate_24h"`
	SharesFound   uint64  `json:"shares_found"`
	AverageEffort float64 `json:"average_effort"`
	CurrentEffort float64 `json:"current_effort"`
	Connections   uint32  `json:"connections"`
}

// DefaultPoolStatsFile is the seed object written when the pool is spawned.
func DefaultPoolStatsFile() PoolStatsFile {
	return PoolStatsFile{}
}

// ToTelemetry converts the parsed file into the telemetry package's raw
// stats shape.
func (f PoolStatsFile) ToTelemetry() telemetry.PoolStats {
	return telemetry.PoolStats{
		Hashrate15m:   f.Hashrate15m,
		Hashrate1h:    f.Hashrate1h,
		Hashrate24h:   f.Hashrate24h,
		SharesFound:   f.SharesFound,
		AverageEffort: f.AverageEffort,
		CurrentEffort: f.CurrentEffort,
		Connections:   f.Connections,
	}
}

// ReadPoolStatsFile reads and decodes the pool stats file at path. A missing
// file is reported as os.ErrNotExist (the caller logs it as a warn, not an
// error, per spec §4.2); malformed JSON is returned as an error too, and the
// caller should ignore that tick rather than propagate it.
func ReadPoolStatsFile(path string) (PoolStatsFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return PoolStatsFile{}, err
	}
	defer f.Close()

	var stats PoolStatsFile
	if err := json.NewDecoder(f).Decode(&stats); err != nil {
		return PoolStatsFile{}, fmt.Errorf("malformed pool stats JSON: %w", err)
	}
	return stats, nil
}

// SeedPoolStatsFile deletes any existing stats file at path and recreates it
// with the default empty object, per spec §4.4 step 4.
func SeedPoolStatsFile(path string) error {
	_ = os.Remove(path)
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(DefaultPoolStatsFile())
}

// MinerSummary is the subset of the miner's /1/summary JSON retained per
// spec §4.2.
type MinerSummary struct {
	WorkerID  string `json:"worker_id"`
	Resources struct {
		LoadAverage [3]*float64 `json:"load_average"`
	} `json:"resources"`
	Hashrate struct {
		Total [3]*float64 `json:"total"`
	} `json:"hashrate"`
	Connection struct {
		Pool     string `json:"pool"`
		Diff     uint64 `json:"diff"`
		Accepted uint64 `json:"accepted"`
		Rejected uint64 `json:"rejected"`
	} `json:"connection"`
}

// ToTelemetry converts the decoded summary into the telemetry package's raw
// miner stats shape.
func (s MinerSummary) ToTelemetry() telemetry.MinerStats {
	return telemetry.MinerStats{
		WorkerID:    s.WorkerID,
		LoadAverage: s.Resources.LoadAverage,
		HashrateTot: s.Hashrate.Total,
		Pool:        s.Connection.Pool,
		Difficulty:  s.Connection.Diff,
		Accepted:    s.Connection.Accepted,
		Rejected:    s.Connection.Rejected,
	}
}

// DecodeMinerSummary decodes r as a MinerSummary.
func DecodeMinerSummary(r io.Reader) (MinerSummary, error) {
	var s MinerSummary
	if err := json.NewDecoder(r).Decode(&s); err != nil {
		return MinerSummary{}, fmt.Errorf("malformed miner summary JSON: %w", err)
	}
	return s, nil
}

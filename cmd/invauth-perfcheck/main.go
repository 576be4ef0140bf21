// Command invauth-perfcheck compares two `go test -bench` outputs and fails
// when a tracked hot-path benchmark regressed past the threshold.
package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
)

// tracked lists the benchmarks guarding the request path and the units compared
// for each.
var tracked = map[string][]string{
	"BenchmarkValidate":        {"ns/op", "allocs/op"},
	"BenchmarkValidateRequest": {"ns/op", "allocs/op"},
	"BenchmarkRefresh":         {"ns/op"},
	"BenchmarkLogin":           {"ns/op"},
}

type samples map[string]map[string][]float64

type comparison struct {
	Benchmark string
	Unit      string
	Baseline  float64
	Candidate float64
	Delta     float64
}

func main() {
	baselinePath := flag.String("baseline", "", "benchmark output of the base revision")
	candidatePath := flag.String("candidate", "", "benchmark output of the candidate revision")
	threshold := flag.Float64("threshold", 0.30, "maximum tolerated slowdown ratio")
	flag.Parse()

	if err := run(*baselinePath, *candidatePath, *threshold, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(baselinePath, candidatePath string, threshold float64, out io.Writer) error {
	if baselinePath == "" || candidatePath == "" {
		return errors.New("-baseline and -candidate are required")
	}
	if threshold < 0 {
		return errors.New("-threshold must be >= 0")
	}

	baseline, err := parseFile(baselinePath)
	if err != nil {
		return fmt.Errorf("parse baseline: %w", err)
	}
	candidate, err := parseFile(candidatePath)
	if err != nil {
		return fmt.Errorf("parse candidate: %w", err)
	}

	rows, problems := compare(baseline, candidate)
	fmt.Fprintln(out, "benchmark\tunit\tbaseline\tcandidate\tdelta")
	for _, r := range rows {
		fmt.Fprintf(out, "%s\t%s\t%.1f\t%.1f\t%+.1f%%\n", r.Benchmark, r.Unit, r.Baseline, r.Candidate, r.Delta*100)
		if r.Delta > threshold {
			problems = append(problems, fmt.Sprintf("%s %s slower by %.1f%% (limit %.1f%%)", r.Benchmark, r.Unit, r.Delta*100, threshold*100))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("perf check failed:\n  %s", strings.Join(problems, "\n  "))
	}
	return nil
}

// compare returns one row per tracked benchmark and unit, sorted by name, plus
// a problem line for each pair that cannot be compared.
func compare(baseline, candidate samples) ([]comparison, []string) {
	names := make([]string, 0, len(tracked))
	for name := range tracked {
		names = append(names, name)
	}
	sort.Strings(names)

	var rows []comparison
	var problems []string
	for _, name := range names {
		for _, unit := range tracked[name] {
			base := median(baseline[name][unit])
			cand := median(candidate[name][unit])
			switch {
			case len(baseline[name][unit]) == 0 || len(candidate[name][unit]) == 0:
				problems = append(problems, fmt.Sprintf("no samples for %s %s", name, unit))
				continue
			case base <= 0:
				// allocs/op of 0 cannot regress in ratio terms.
				if cand > 0 {
					problems = append(problems, fmt.Sprintf("%s %s went from 0 to %.0f", name, unit, cand))
				}
				continue
			}
			rows = append(rows, comparison{Benchmark: name, Unit: unit, Baseline: base, Candidate: cand, Delta: (cand - base) / base})
		}
	}
	return rows, problems
}

func parseFile(path string) (samples, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parse(f)
}

func parse(r io.Reader) (samples, error) {
	out := samples{}
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 4 || !strings.HasPrefix(fields[0], "Benchmark") {
			continue
		}
		name := trimProcs(fields[0])
		if _, ok := tracked[name]; !ok {
			continue
		}
		if out[name] == nil {
			out[name] = map[string][]float64{}
		}
		for i := 2; i+1 < len(fields); i += 2 {
			v, err := strconv.ParseFloat(fields[i], 64)
			if err != nil {
				continue
			}
			out[name][fields[i+1]] = append(out[name][fields[i+1]], v)
		}
	}
	return out, sc.Err()
}

// trimProcs drops the -GOMAXPROCS suffix go test appends to benchmark names.
func trimProcs(name string) string {
	if i := strings.LastIndexByte(name, '-'); i > 0 {
		if _, err := strconv.Atoi(name[i+1:]); err == nil {
			return name[:i]
		}
	}
	return name
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	s := append([]float64(nil), values...)
	sort.Float64s(s)
	mid := len(s) / 2
	if len(s)%2 == 1 {
		return s[mid]
	}
	return (s[mid-1] + s[mid]) / 2
}

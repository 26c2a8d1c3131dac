package kpi

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var quarterPattern = regexp.MustCompile(`^Q([1-4])-(\d{4})$`)

type Quarter struct {
	Number int
	Year   int
}

// ParseQuarter accepts Q<1-4>-<year>, case-insensitively.
func ParseQuarter(value string) (Quarter, error) {
	m := quarterPattern.FindStringSubmatch(strings.ToUpper(strings.TrimSpace(value)))
	if m == nil {
		return Quarter{}, fmt.Errorf("quarter %q must look like Q1-2025", value)
	}
	number, _ := strconv.Atoi(m[1])
	year, _ := strconv.Atoi(m[2])
	return Quarter{Number: number, Year: year}, nil
}

func (q Quarter) String() string {
	return fmt.Sprintf("Q%d-%d", q.Number, q.Year)
}

// Package voltage classifies input voltage readings against lower-bound thresholds.
package voltage

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/and161185/gwn-voltage/model"
)

// MetricName is the perfdata label. Graphing hosts key on it.
const MetricName = "Input_Voltage"

const (
	rangeMin = 0
	rangeMax = 60
)

// ErrNoReading means the telemetry payload had no usable inputVoltage.
var ErrNoReading = errors.New("inputVoltage missing or not numeric")

type powerInfo struct {
	Data *struct {
		InputVoltage json.RawMessage `json:"inputVoltage"`
	} `json:"data"`
}

// ParseReading extracts data.inputVoltage (millivolts) from a telemetry body.
// The value may be a JSON number or a numeric string; surrounding
// whitespace in a string is ignored.
func ParseReading(body []byte) (model.Reading, error) {
	var pi powerInfo
	if err := json.Unmarshal(body, &pi); err != nil {
		return model.Reading{}, fmt.Errorf("%w: %v", ErrNoReading, err)
	}
	if pi.Data == nil || len(pi.Data.InputVoltage) == 0 {
		return model.Reading{}, ErrNoReading
	}

	text := string(pi.Data.InputVoltage)
	var str string
	if err := json.Unmarshal(pi.Data.InputVoltage, &str); err == nil {
		text = strings.TrimSpace(str)
	}
	if text == "" || strings.ContainsAny(text, "xX_") {
		return model.Reading{}, ErrNoReading
	}
	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return model.Reading{}, fmt.Errorf("%w: %v", ErrNoReading, err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return model.Reading{}, ErrNoReading
	}
	return model.Reading{RawMilliunits: v}, nil
}

// Round3 rounds v to 3 decimal places, halves away from zero.
func Round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

// Volts converts a millivolt reading to volts rounded to 3 decimals.
func Volts(r model.Reading) float64 {
	return Round3(r.RawMilliunits / 1000)
}

// Classify returns the severity for volts. Thresholds are lower bounds and
// the comparison is inclusive; crit is tested first.
func Classify(volts float64, th model.Thresholds) model.Status {
	switch {
	case volts <= th.Crit:
		return model.Critical
	case volts <= th.Warn:
		return model.Warning
	default:
		return model.OK
	}
}

// PerfData renders the metric record.
func PerfData(volts float64, th model.Thresholds) string {
	return fmt.Sprintf("'%s'=%.3f;%.1f;%.1f;%d;%d", MetricName, volts, th.Warn, th.Crit, rangeMin, rangeMax)
}

// Evaluate classifies a reading taken from device and builds the outcome.
// A metric record is attached whatever the status.
func Evaluate(r model.Reading, th model.Thresholds, device string) model.Outcome {
	volts := Volts(r)
	status := Classify(volts, th)

	var msg string
	switch status {
	case model.Critical:
		msg = fmt.Sprintf("%s: %s %.3fV (Threshold: < %.1fV).", device, MetricName, volts, th.Crit)
	case model.Warning:
		msg = fmt.Sprintf("%s: %s %.3fV (Threshold: < %.1fV).", device, MetricName, volts, th.Warn)
	default:
		msg = fmt.Sprintf("%s: %s %.3fV, (Warn < %.1fV, Crit < %.1fV).", device, MetricName, volts, th.Warn, th.Crit)
	}

	return model.Outcome{
		Status:   status,
		Message:  msg,
		PerfData: PerfData(volts, th),
	}
}

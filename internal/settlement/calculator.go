package settlement

import "math"

// Result is the split of a captured charge. All amounts are minor units.
type Result struct {
	Gross        int64
	PlatformFee  int64
	ProcessorFee int64
	Net          int64
	// Anomaly marks a split that needs a human look: zero gross or fees
	// that swallow the whole charge. The net is clamped to zero so a bad
	// input can never produce a negative transfer.
	Anomaly bool
}

// Calculate splits a gross charge into the platform's cut and the host's net.
// The platform fee is a percentage of gross, rounded half up. The processor
// fee comes from the gateway and is passed through as-is.
func Calculate(gross int64, platformFeePercent float64, processorFee int64) Result {
	r := Result{
		Gross:        gross,
		ProcessorFee: processorFee,
	}

	if gross <= 0 {
		r.Anomaly = true
		return r
	}

	r.PlatformFee = int64(math.Floor(float64(gross)*platformFeePercent/100 + 0.5))
	r.Net = gross - r.PlatformFee - processorFee

	if r.Net < 0 {
		r.Net = 0
		r.Anomaly = true
	}

	return r
}

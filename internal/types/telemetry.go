package types

// Metric names and dimensions published to CloudWatch.
const (
	MetricAPILatency        = "APILatency"
	MetricAPIRequestCount   = "APIRequestCount"
	MetricYieldModelOutcome = "YieldModelOutcome"

	DimEndpoint = "Endpoint"
	DimMethod   = "Method"
	DimStatus   = "Status"
	DimResult   = "Result"
	DimCrop     = "Crop"

	// Metric Namespace
	MetricNamespace = "CropYield"
)

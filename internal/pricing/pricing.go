// Package pricing holds the AWS Lambda and CloudWatch Logs list prices used in cost queries.
package pricing

const (
	// ArchARM64 and ArchX86 are the Lambda architecture tags.
	ArchARM64 = "arm64"
	ArchX86   = "x86_64"

	// x86MemoryGBSecond is the on-demand price per GB-second of memory on x86_64.
	x86MemoryGBSecond = 0.0000166667
	// arm64MemoryGBSecond is the on-demand price per GB-second of memory on arm64.
	arm64MemoryGBSecond = 0.0000133334

	// StorageGBSecond is the price per GB-second of ephemeral storage above the free 512 MB.
	StorageGBSecond = 0.0000000309
	// FreeEphemeralStorageMB is the ephemeral storage included at no charge.
	FreeEphemeralStorageMB = 512
	// InvocationPrice is the price of a single request.
	InvocationPrice = 0.20 / 1_000_000

	// LogIngestionPerGB is the CloudWatch Logs standard ingestion price.
	LogIngestionPerGB = 0.50
	// LogStoragePerGBMonth is the CloudWatch Logs archival price.
	LogStoragePerGBMonth = 0.03
	// LogsInsightsPerGBScanned is the Logs Insights query price.
	LogsInsightsPerGBScanned = 0.005

	bytesPerGB = 1 << 30
)

// MemoryGBSecond returns the memory price for an architecture.
// Unknown architectures are priced as x86_64.
func MemoryGBSecond(arch string) float64 {
	if arch == ArchARM64 {
		return arm64MemoryGBSecond
	}
	return x86MemoryGBSecond
}

// BillableStorageMB returns the ephemeral storage that is charged for.
// It can be negative when the configured size is below the free tier;
// the query clamps the resulting cost at zero.
func BillableStorageMB(ephemeralMB int) int {
	return ephemeralMB - FreeEphemeralStorageMB
}

// LogCosts derives log volume and cost figures from bytes scanned by a query.
type LogCosts struct {
	SizeGB        float64
	IngestionCost float64
	StorageCost   float64
	AnalysisCost  float64
}

// LogCostsFromBytes prices the log volume a query scanned.
func LogCostsFromBytes(bytesScanned float64) LogCosts {
	if bytesScanned <= 0 {
		return LogCosts{}
	}
	gb := bytesScanned / bytesPerGB
	return LogCosts{
		SizeGB:        gb,
		IngestionCost: gb * LogIngestionPerGB,
		StorageCost:   gb * LogStoragePerGBMonth,
		AnalysisCost:  gb * LogsInsightsPerGBScanned,
	}
}

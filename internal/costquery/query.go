package costquery

import (
	"strconv"
	"strings"

	"github.com/ppiankov/lambdaspectre/internal/aws"
	"github.com/ppiankov/lambdaspectre/internal/pricing"
)

// queryTemplate computes every cost and right-sizing figure in one Logs Insights pass.
// REPORT lines carry @billedDuration, @memorySize and @maxMemoryUsed in bytes.
const queryTemplate = `fields @timestamp, @message
| parse @message "Process exited before completing request" as memory_exceeded_1
| parse @message "[ERROR] MemoryError" as memory_exceeded_2
| parse @message "Task timed out after *" as timeout_number_1
| parse @message "Status: timeout" as timeout_number_2
| parse @message "REPORT RequestId: *" as REPORT
| stats greatest(count(timeout_number_1), 0) + greatest(count(timeout_number_2), 0) as timeoutInvocations,
  count(REPORT) as countInvocations,
  greatest(count(memory_exceeded_1), 0) + greatest(count(memory_exceeded_2), 0) as memoryExceededInvocation,
  {{invocationPrice}} as singleInvocationCost,
  {{memoryPrice}} as GBSecondMemoryPrice,
  {{storagePrice}} as GBSecondStoragePrice,
  {{storageMB}} as StorageSizeMB,
  max(@memorySize / 1000000) as provisionedMemoryMB,
  sum(@billedDuration) / 1000 as allDurationInSeconds,
  allDurationInSeconds * provisionedMemoryMB / 1024 as GbSecondsMemoryConsumed,
  allDurationInSeconds * StorageSizeMB / 1024 as GbSecondsStorageConsumed,
  GbSecondsMemoryConsumed * GBSecondMemoryPrice as MemoryCost,
  greatest(GbSecondsStorageConsumed * GBSecondStoragePrice, 0) as StorageCost,
  countInvocations * singleInvocationCost as InvocationCost,
  MemoryCost + InvocationCost + StorageCost as totalCost,
  max(@maxMemoryUsed / 1000000) as maxMemoryUsedMB,
  greatest(provisionedMemoryMB - maxMemoryUsedMB, 0) as overProvisionedMB,
  greatest(maxMemoryUsedMB * {{headroom}}, {{minMemoryMB}}) as optimalMinMemory,
  least(optimalMinMemory, provisionedMemoryMB) as optimalMemory,
  allDurationInSeconds * optimalMemory * GBSecondMemoryPrice / 1024 as optimalMemoryCost,
  greatest(MemoryCost - optimalMemoryCost, 0) as potentialSavings,
  totalCost / countInvocations as avgCostPerInvocation,
  allDurationInSeconds / countInvocations as avgDurationPerInvocation`

const (
	// memoryHeadroom is the margin kept above the observed peak when right-sizing.
	memoryHeadroom = 1.2
	// minMemoryMB is the smallest memory size Lambda allows.
	minMemoryMB = 128
)

// BuildQuery renders the cost query for a function's architecture and storage size.
func BuildQuery(fc aws.FunctionConfig) string {
	r := strings.NewReplacer(
		"{{invocationPrice}}", formatPrice(pricing.InvocationPrice),
		"{{memoryPrice}}", formatPrice(pricing.MemoryGBSecond(fc.Architecture)),
		"{{storagePrice}}", formatPrice(pricing.StorageGBSecond),
		"{{storageMB}}", strconv.Itoa(pricing.BillableStorageMB(fc.EphemeralStorageMB)),
		"{{headroom}}", formatPrice(memoryHeadroom),
		"{{minMemoryMB}}", strconv.Itoa(minMemoryMB),
	)
	return r.Replace(queryTemplate)
}

func formatPrice(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

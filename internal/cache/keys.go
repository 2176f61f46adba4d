package cache

import "fmt"

func ScanJobKey(jobID string) string {
	return fmt.Sprintf("scan:job:%s", jobID)
}

func RateLimitKey(scope, caller string) string {
	return fmt.Sprintf("ratelimit:%s:%s", scope, caller)
}

func ReportKey(jobID string) string {
	return fmt.Sprintf("scan:report:%s", jobID)
}

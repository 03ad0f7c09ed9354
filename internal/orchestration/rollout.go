package orchestration

import (
	"strconv"
	"strings"

	"github.com/edgecv/fleet-console/internal/domain"
)

// ParseTimeoutSeconds reads the per-component update timeout. Anything that
// is not a positive integer yields domain.DefaultTimeoutSeconds.
func ParseTimeoutSeconds(text string) int {
	n, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil || n <= 0 {
		return domain.DefaultTimeoutSeconds
	}
	return n
}

func BuildRolloutConfig(autoRollback bool, timeoutText string) domain.RolloutConfig {
	return domain.RolloutConfig{
		AutoRollback:   autoRollback,
		TimeoutSeconds: ParseTimeoutSeconds(timeoutText),
	}
}

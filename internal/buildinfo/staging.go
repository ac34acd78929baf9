package buildinfo

import (
	"time"

	"buildrecorder/internal/config"
	"buildrecorder/internal/types"
)

// stagingStatuses returns the single staged promotion status when release is
// enabled, and nil otherwise. The staging repository is the publisher repo
// key; a blank key is recorded as-is.
func stagingStatuses(cfg config.ClientConfig, started string) ([]types.PromotionStatus, error) {
	if !cfg.Info.ReleaseEnabled {
		return nil, nil
	}

	startedAt, err := time.Parse(types.StartedFormat, started)
	if err != nil {
		return nil, types.NewAppErrorWithDetails(types.ErrCodeConfiguration,
			"build info start date format error: "+started, err,
			map[string]any{"started": started, "format": types.StartedFormat})
	}

	return []types.PromotionStatus{{
		Status:     types.StatusStaged,
		Comment:    cfg.Info.ReleaseComment,
		Repository: cfg.Publisher.RepoKey,
		Timestamp:  startedAt,
		User:       cfg.Publisher.Username,
		CiUser:     cfg.Info.Principal,
	}}, nil
}

package drive

import (
	"context"
	"time"
)

const dashboardActivities = 10

// DashboardStats are the headline numbers.
type DashboardStats struct {
	TotalFiles     int   `json:"totalFiles"`
	TotalFolders   int   `json:"totalFolders"`
	StorageUsed    int64 `json:"storageUsed"`
	StorageQuota   int64 `json:"storageQuota"`
	UsedPercentage int   `json:"usedPercentage"`
}

// Activity is a recent change. Trashed keys show as deletions.
type Activity struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	UserName  string    `json:"userName"`
	FileName  string    `json:"fileName"`
	Timestamp time.Time `json:"timestamp"`
	Status    string    `json:"status"`
}

// Dashboard combines usage with recent activity.
type Dashboard struct {
	Stats      DashboardStats  `json:"stats"`
	Breakdown  []BreakdownItem `json:"breakdown"`
	Activities []Activity      `json:"activities"`
}

// Dashboard builds the overview page.
func (s *Service) Dashboard(ctx context.Context) (*Dashboard, error) {
	usage, err := s.StorageUsage(ctx)
	if err != nil {
		return nil, err
	}
	recent, err := s.activity(ctx)
	if err != nil {
		return nil, err
	}
	recent = recent[:min(len(recent), dashboardActivities)]

	quota := usage.QuotaBytes
	if quota <= 0 {
		quota = 1
	}

	d := &Dashboard{
		Stats: DashboardStats{
			TotalFiles:     usage.FileCount,
			TotalFolders:   usage.FolderCount,
			StorageUsed:    usage.TotalBytes,
			StorageQuota:   usage.QuotaBytes,
			UsedPercentage: min(percent(usage.TotalBytes, quota), 100),
		},
		Breakdown:  usage.Breakdown,
		Activities: make([]Activity, 0, len(recent)),
	}
	for _, e := range recent {
		a := Activity{
			ID:        e.Key,
			Type:      "upload",
			UserName:  "S3 Storage",
			FileName:  e.Name,
			Timestamp: e.LastModified,
			Status:    "Modified",
		}
		if isTrashed(e.Key) {
			a.Type = "delete"
			a.Status = "Deleted"
		}
		d.Activities = append(d.Activities, a)
	}
	return d, nil
}

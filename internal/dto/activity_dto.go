package dto

import "github.com/kurid3v/AVinci/internal/models"

// ActivityListRequest defines filters for retrieving activity logs.
type ActivityListRequest struct {
	Page       int
	PageSize   int
	ActorID    string
	Action     string
	EntityType string
	EntityID   string
}

// ActivityListResponse wraps paginated activity logs.
type ActivityListResponse struct {
	Items      []models.ActivityLog `json:"items"`
	Pagination PaginationMeta       `json:"pagination"`
}

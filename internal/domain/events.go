package domain

// ExportSummary компактное описание выгрузки без постов.
type ExportSummary struct {
	RunID           string       `json:"run_id"`
	ChannelID       int64        `json:"channel_id"`
	Username        *string      `json:"username"`
	Title           string       `json:"title"`
	Status          ExportStatus `json:"status"`
	PostsCount      int          `json:"posts_count"`
	CommentsCount   int          `json:"comments_count"`
	ExportedAt      Timestamp    `json:"exported_at"`
	Path            string       `json:"path"`
	DurationSeconds float64      `json:"duration_seconds"`
}

// Summary строит ExportSummary из события.
func (e ExportEvent) Summary() ExportSummary {
	return ExportSummary{
		RunID:           e.RunID,
		ChannelID:       e.Output.Channel.ID,
		Username:        e.Output.Channel.Username,
		Title:           e.Output.Channel.Title,
		Status:          e.Output.Status,
		PostsCount:      e.Output.PostsCount,
		CommentsCount:   e.Output.CommentsCount,
		ExportedAt:      e.Output.ExportedAt,
		Path:            e.Path,
		DurationSeconds: e.Duration.Seconds(),
	}
}

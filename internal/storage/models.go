package storage

import "time"

// StatusFailed marks a PageRecord whose fetch never produced an HTTP status
const StatusFailed = -1

// NoTitle is written in place of an absent page title
const NoTitle = "No Title"

// CrawlTask represents an item in the BFS crawl frontier
type CrawlTask struct {
	URL     string
	Depth   int
	Attempt int
}

// PageRecord is one durable output row per distinct visited URL.
// An empty Title means the page had none.
type PageRecord struct {
	URL    string
	Depth  int
	Title  string
	Status int
}

// TitleOrDefault returns the title to persist for the record
func (r PageRecord) TitleOrDefault() string {
	if r.Title == "" {
		return NoTitle
	}
	return r.Title
}

// Metrics tracks crawl statistics for export on exit
type Metrics struct {
	StartTime         time.Time `json:"start_time"`
	EndTime           time.Time `json:"end_time"`
	PagesDiscovered   int       `json:"pages_discovered"`
	PagesFetched      int       `json:"pages_fetched"`
	PagesFailed       int       `json:"pages_failed"`
	PagesSkipped      int       `json:"pages_skipped"`
	PagesRetried      int       `json:"pages_retried"`
	TasksDropped      int       `json:"tasks_dropped"`
	TasksPending      int       `json:"tasks_pending"`
	RecordsWritten    int       `json:"records_written"`
	TotalFetchTimeMs  int64     `json:"total_fetch_time_ms"`
	AvgFetchTimeMs    int64     `json:"avg_fetch_time_ms"`
	TerminationReason string    `json:"termination_reason"`
}

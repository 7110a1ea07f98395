// Package scraper fetches the board's paginated list pages and extracts
// notices from them.
//
// Fetching is strictly sequential and never retried: any network failure,
// timeout or non-2xx status aborts the whole fetch so a run never trusts a
// partial listing. Extraction is lenient per item. A list item without a
// recognizable view-message link or with an empty title is skipped, never fatal.
package scraper

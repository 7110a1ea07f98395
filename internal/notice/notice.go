package notice

// Notice is one announcement extracted from the board's list page.
type Notice struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	URL      string `json:"url"`
	Category string `json:"category,omitempty"`
	Date     string `json:"date,omitempty"`
}

// New creates a Notice whose URL is derived from its id on the given board.
func New(board Board, id, title, category, date string) Notice {
	return Notice{
		ID:       id,
		Title:    title,
		URL:      board.MessageURL(id),
		Category: category,
		Date:     date,
	}
}

// IDs returns the notice ids in order.
func IDs(notices []Notice) []string {
	ids := make([]string, 0, len(notices))
	for _, n := range notices {
		ids = append(ids, n.ID)
	}
	return ids
}

// Dedup drops repeated ids, keeping the first occurrence of each.
func Dedup(notices []Notice) []Notice {
	seen := make(map[string]bool, len(notices))
	unique := make([]Notice, 0, len(notices))
	for _, n := range notices {
		if seen[n.ID] {
			continue
		}
		seen[n.ID] = true
		unique = append(unique, n)
	}
	return unique
}

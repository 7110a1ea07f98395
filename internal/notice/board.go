package notice

import (
	"net/url"
	"strconv"
)

const (
	// DefaultBaseURL is the list page of the business graduate school board.
	DefaultBaseURL = "https://bizgrad.hanyang.ac.kr/nt1"

	portletID = "kr_ac_hanyang_bbs_web_portlet_BbsPortlet"
)

// Board builds list and message URLs for a portal bulletin board.
type Board struct {
	BaseURL string
}

// NewBoard returns a Board rooted at baseURL, or DefaultBaseURL when empty.
func NewBoard(baseURL string) Board {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return Board{BaseURL: baseURL}
}

// ListURL returns the URL of the given 1-based list page.
func (b Board) ListURL(page int) string {
	q := b.query("view")
	q.Set(param("cur"), strconv.Itoa(page))
	return b.BaseURL + "?" + q.Encode()
}

// MessageURL returns the URL of a single notice.
func (b Board) MessageURL(id string) string {
	q := b.query("view_message")
	q.Set(param("messageId"), id)
	return b.BaseURL + "?" + q.Encode()
}

func (b Board) query(action string) url.Values {
	q := url.Values{}
	q.Set("p_p_id", portletID)
	q.Set("p_p_lifecycle", "0")
	q.Set("p_p_state", "normal")
	q.Set("p_p_mode", "view")
	q.Set(param("action"), action)
	q.Set(param("sDisplayType"), "1")
	return q
}

// param namespaces a query parameter with the portlet id.
func param(name string) string {
	return "_" + portletID + "_" + name
}

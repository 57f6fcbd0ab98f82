package drawer

import (
	"errors"
	"strings"
	"time"
)

// ErrNotFound is returned when no unit matches the requested key.
var ErrNotFound = errors.New("notification unit not found")

// NotiInfo is a single posted notification inside a unit.
type NotiInfo struct {
	Time    time.Time `json:"time"`
	Title   string    `json:"title"`
	Content string    `json:"content"`
}

// NotiUnit is one tracked notification thread, keyed by its status-bar key.
//
// NotiInfos holds what arrived since the last digest; PrevNotiInfos holds what
// a previous digest already covered.
type NotiUnit struct {
	SbnKey        string     `json:"sbn_key"`
	HashKey       int64      `json:"hash_key"`
	AppName       string     `json:"app_name"`
	IsPeople      bool       `json:"is_people"`
	Title         string     `json:"title"`
	NotiInfos     []NotiInfo `json:"noti_infos"`
	PrevNotiInfos []NotiInfo `json:"prev_noti_infos"`
	Score         float64    `json:"score"`
	Ranking       int        `json:"ranking"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Append records a new notification on the unit.
func (u *NotiUnit) Append(info NotiInfo) {
	u.NotiInfos = append(u.NotiInfos, info)
}

// MarkSeen moves the current infos behind the previous ones.
// It reports whether anything moved.
func (u *NotiUnit) MarkSeen() bool {
	if len(u.NotiInfos) == 0 {
		return false
	}
	u.PrevNotiInfos = append(u.PrevNotiInfos, u.NotiInfos...)
	u.NotiInfos = nil
	return true
}

// TitlesIdentical reports whether every non-blank info title across previous
// and current infos is one and the same value.
func (u *NotiUnit) TitlesIdentical() bool {
	seen := ""
	count := 0
	for _, infos := range [][]NotiInfo{u.NotiInfos, u.PrevNotiInfos} {
		for _, info := range infos {
			if strings.TrimSpace(info.Title) == "" {
				continue
			}
			if count == 0 {
				seen = info.Title
				count = 1
				continue
			}
			if info.Title != seen {
				return false
			}
		}
	}
	return count == 1
}

// IngestRequest is what the device-side listener posts for each notification.
type IngestRequest struct {
	SbnKey   string    `json:"sbn_key" binding:"required"`
	HashKey  int64     `json:"hash_key"`
	AppName  string    `json:"app_name" binding:"required"`
	IsPeople bool      `json:"is_people"`
	Title    string    `json:"title"`
	Content  string    `json:"content"`
	PostedAt time.Time `json:"posted_at"`
	Score    *float64  `json:"score,omitempty"`
	Ranking  *int      `json:"ranking,omitempty"`
}

// Page is one page of units in display order.
type Page struct {
	Units    []NotiUnit `json:"units"`
	Page     int        `json:"page"`
	PageSize int        `json:"page_size"`
	Total    int        `json:"total"`
}

package dashboard

import (
	"time"

	"github.com/osobot/oso/internal/models"
	"gorm.io/gorm"
)

// Stats summarizes the store for the status endpoint.
type Stats struct {
	Total           int64            `json:"total"`
	Inbound         int64            `json:"inbound"`
	Locked          int64            `json:"locked"`
	Stages          map[string]int64 `json:"stages"`
	Classifications map[string]int64 `json:"classifications"`
}

// CollectStats walks the inbound records and aggregates their derived
// stages. Stage is computed per record rather than in SQL because it is a
// function of several fields; the inbox is small enough that this stays
// cheap.
func CollectStats(db *gorm.DB) (*Stats, error) {
	stats := &Stats{
		Stages:          make(map[string]int64),
		Classifications: make(map[string]int64),
	}

	if err := db.Model(&models.Msg{}).Count(&stats.Total).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.Msg{}).
		Where("locked_at IS NOT NULL").
		Count(&stats.Locked).Error; err != nil {
		return nil, err
	}

	type clsRow struct {
		Classification string
		Count          int64
	}
	var clsRows []clsRow
	if err := db.Model(&models.Msg{}).
		Select("classification, count(*) as count").
		Where("is_receiver_me = ? AND classification IS NOT NULL", true).
		Group("classification").
		Find(&clsRows).Error; err != nil {
		return nil, err
	}
	for _, r := range clsRows {
		stats.Classifications[r.Classification] = r.Count
	}

	var msgs []models.Msg
	if err := db.Where("is_receiver_me = ?", true).Find(&msgs).Error; err != nil {
		return nil, err
	}
	stats.Inbound = int64(len(msgs))
	for i := range msgs {
		stats.Stages[msgs[i].Stage()]++
	}
	return stats, nil
}

// MsgRow is one record in list responses, without body or attachments.
type MsgRow struct {
	ID             string `json:"id"`
	CreatedAt      int64  `json:"created_at"`
	Source         string `json:"source"`
	Sender         string `json:"sender"`
	Inbound        bool   `json:"inbound"`
	Subject        string `json:"subject,omitempty"`
	Classification string `json:"classification,omitempty"`
	Stage          string `json:"stage"`
	Locked         bool   `json:"locked"`
	PostID         string `json:"post_id,omitempty"`
	ReplyID        string `json:"reply_id,omitempty"`
}

func toRow(m *models.Msg) MsgRow {
	row := MsgRow{
		ID:        m.ID,
		CreatedAt: m.CreatedAt,
		Source:    m.Source,
		Sender:    m.Sender,
		Inbound:   m.IsReceiverMe,
		Subject:   m.Subject,
		Stage:     m.Stage(),
		Locked:    m.LockedAt != nil,
	}
	if m.Classification != nil {
		row.Classification = *m.Classification
	}
	if m.PostID != nil {
		row.PostID = *m.PostID
	}
	if m.ReplyID != nil {
		row.ReplyID = *m.ReplyID
	}
	return row
}

// ListMsgs returns recent records, newest first, optionally filtered by
// sender or derived stage.
func ListMsgs(db *gorm.DB, sender, stage string, limit int) ([]MsgRow, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	q := db.Model(&models.Msg{}).Order("created_at DESC")
	if sender != "" {
		q = q.Where("sender = ?", sender)
	}
	if stage != "" {
		// Stage filtering happens after derivation; fetch extra rows so a
		// sparse stage still fills the page.
		q = q.Limit(limit * 10)
	} else {
		q = q.Limit(limit)
	}

	var msgs []models.Msg
	if err := q.Find(&msgs).Error; err != nil {
		return nil, err
	}

	rows := make([]MsgRow, 0, limit)
	for i := range msgs {
		row := toRow(&msgs[i])
		if stage != "" && row.Stage != stage {
			continue
		}
		rows = append(rows, row)
		if len(rows) == limit {
			break
		}
	}
	return rows, nil
}

// MsgDetail is the full record view, including meta and stage outputs.
type MsgDetail struct {
	MsgRow
	Receiver  string                 `json:"receiver"`
	Body      string                 `json:"body"`
	Summary   string                 `json:"summary,omitempty"`
	ReplyBody string                 `json:"reply_body,omitempty"`
	Meta      map[string]interface{} `json:"meta,omitempty"`
	Images    int                    `json:"images"`
	Failed    bool                   `json:"failed"`
	Rejected  bool                   `json:"rejected"`
}

func toDetail(m *models.Msg) MsgDetail {
	d := MsgDetail{
		MsgRow:   toRow(m),
		Receiver: m.Receiver,
		Body:     m.Body,
		Images:   len(m.Images),
		Failed:   m.Failed(),
		Rejected: m.Rejected(),
	}
	if m.Summary != nil {
		d.Summary = *m.Summary
	}
	if m.ReplyBody != nil {
		d.ReplyBody = *m.ReplyBody
	}
	if meta := m.MetaMap(); len(meta) > 0 {
		d.Meta = meta
	}
	return d
}

// SenderActivity summarizes one sender's recent history.
type SenderActivity struct {
	Sender    string   `json:"sender"`
	Msgs      []MsgRow `json:"msgs"`
	Published int      `json:"published"`
	Replied   int      `json:"replied"`
}

// CollectSenderActivity returns a sender's records within the window plus
// effect counts.
func CollectSenderActivity(db *gorm.DB, sender string, window time.Duration) (*SenderActivity, error) {
	since := time.Now().Add(-window).Unix()
	var msgs []models.Msg
	if err := db.
		Where("sender = ? AND created_at >= ?", sender, since).
		Order("created_at DESC").
		Find(&msgs).Error; err != nil {
		return nil, err
	}

	out := &SenderActivity{Sender: sender, Msgs: make([]MsgRow, 0, len(msgs))}
	for i := range msgs {
		out.Msgs = append(out.Msgs, toRow(&msgs[i]))
		if msgs[i].PostID != nil {
			out.Published++
		}
		if msgs[i].ReplyID != nil {
			out.Replied++
		}
	}
	return out, nil
}

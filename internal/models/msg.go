package models

import (
	"encoding/json"
	"time"
)

// Msg is the durable record for one inbound (or outbound) direct message.
// It is the single aggregate the pipeline operates on: ingestion fields are
// immutable once set, stage output fields are written exactly once per
// successful attempt, and LockedAt carries the worker lease.
type Msg struct {
	ID           string `gorm:"primaryKey;size:64"`
	CreatedAt    int64  `gorm:"not null;index:idx_sender_created,priority:2,sort:desc"`
	LockedAt     *int64 `gorm:"index"`
	Source       string `gorm:"size:32;index"`
	Sender       string `gorm:"size:128;index:idx_sender_created,priority:1"`
	Receiver     string `gorm:"size:128"`
	IsReceiverMe bool
	Subject      string `gorm:"size:512"`
	Body         string `gorm:"type:text"`

	// Meta is an open JSON document of auxiliary attributes (retry
	// counters, rejection notes, redacted working copy). Writes go through
	// Store.MergeMeta and are additive, never a full overwrite.
	Meta string `gorm:"type:json"`

	Classification *string `gorm:"size:16;index"`
	Summary        *string `gorm:"type:text"`
	ReplyBody      *string `gorm:"type:text"`
	ReplyID        *string `gorm:"size:64"`
	PostID         *string `gorm:"size:64"`

	Images []MsgImage `gorm:"foreignKey:MsgID"`
}

// MsgImage is one binary attachment captured at ingestion, ordered by
// Position. Attachments are immutable input data; the pipeline never
// rewrites them.
type MsgImage struct {
	ID       uint   `gorm:"primaryKey;autoIncrement"`
	MsgID    string `gorm:"size:64;index"`
	Position int
	Data     []byte `gorm:"type:mediumblob"`
}

// Classification labels. Pass 0 separates message kinds; pass 1 grades
// stories for publication.
const (
	ClassInstruction = "instruction"
	ClassInquiry     = "inquiry"
	ClassSpam        = "spam"
	ClassOther       = "other"
	ClassStory       = "story"
	ClassBanned      = "banned"
	ClassIllegal     = "illegal"
	ClassSafe        = "safe"
	ClassInteresting = "interesting"
	ClassBoring      = "boring"
)

// RejectClasses are terminal: a message classified as one of these gets no
// summary, no reply, and no post.
var RejectClasses = map[string]bool{
	ClassSpam:        true,
	ClassInstruction: true,
	ClassBanned:      true,
	ClassIllegal:     true,
}

// Meta keys written by the pipeline.
const (
	MetaRedactedBody       = "redacted_body"
	MetaEmbedding          = "embedding"
	MetaRejectedNote       = "rejected"
	MetaFailed             = "failed"
	MetaFailedStage        = "failed_stage"
	MetaPublishAttemptedAt = "publish_attempted_at"
	MetaRetryPrefix        = "retry_"
)

// Stage names, in pipeline order.
const (
	StageReceived   = "received"
	StageClassified = "classified"
	StageSummarized = "summarized"
	StagePublished  = "published"
	StageReplied    = "replied"
	StageDone       = "done"
	StageFailed     = "failed"
)

// MetaMap decodes the meta document. An empty or malformed document decodes
// to an empty map so callers can always merge into it.
func (m *Msg) MetaMap() map[string]interface{} {
	out := make(map[string]interface{})
	if m.Meta == "" {
		return out
	}
	if err := json.Unmarshal([]byte(m.Meta), &out); err != nil {
		return make(map[string]interface{})
	}
	return out
}

// MetaString returns the string value of a meta key, or "" if absent.
func (m *Msg) MetaString(key string) string {
	v, _ := m.MetaMap()[key].(string)
	return v
}

// RetryCount returns the recorded retry counter for a stage.
func (m *Msg) RetryCount(stage string) int {
	v, ok := m.MetaMap()[MetaRetryPrefix+stage]
	if !ok {
		return 0
	}
	// JSON numbers decode as float64.
	if f, ok := v.(float64); ok {
		return int(f)
	}
	return 0
}

// Rejected reports whether the classification landed in the reject set.
func (m *Msg) Rejected() bool {
	return m.Classification != nil && RejectClasses[*m.Classification]
}

// Failed reports whether the pipeline gave up on this message after
// exhausting retries.
func (m *Msg) Failed() bool {
	v, _ := m.MetaMap()[MetaFailed].(bool)
	return v
}

// WantsSummary reports whether this message's classification calls for the
// summarize/publish path. Only real-life stories are summarized and shared.
func (m *Msg) WantsSummary() bool {
	return m.Classification != nil && *m.Classification == ClassStory
}

// WantsReply reports whether this message should receive a reply. All
// non-rejected inbound messages do.
func (m *Msg) WantsReply() bool {
	return m.IsReceiverMe && m.Classification != nil && !m.Rejected()
}

// Stage derives the message's pipeline state purely from which output
// fields are populated. There is no stored status column to drift out of
// sync with the fields themselves.
func (m *Msg) Stage() string {
	switch {
	case !m.IsReceiverMe:
		// Outbound audit records carry no pipeline work.
		return StageDone
	case m.Failed():
		return StageFailed
	case m.Classification == nil:
		return StageReceived
	case m.Rejected():
		return StageDone
	case m.WantsSummary() && m.Summary == nil:
		return StageClassified
	case m.WantsSummary() && m.PostID == nil && m.ReplyID == nil:
		return StageSummarized
	case m.WantsReply() && m.ReplyID == nil:
		if m.WantsSummary() {
			return StagePublished
		}
		return StageClassified
	default:
		return StageDone
	}
}

// Terminal reports whether no further automatic transitions apply.
func (m *Msg) Terminal() bool {
	s := m.Stage()
	return s == StageDone || s == StageFailed
}

// Claimable reports whether the record can be claimed at time now given the
// lease timeout: either unlocked, or the previous lease has gone stale.
func (m *Msg) Claimable(now time.Time, leaseTimeout time.Duration) bool {
	if m.LockedAt == nil {
		return true
	}
	return *m.LockedAt < now.Add(-leaseTimeout).UnixNano()
}

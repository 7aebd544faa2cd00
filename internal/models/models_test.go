package models

import (
	"testing"
	"time"
)

func strPtr(s string) *string { return &s }

func TestStage_Derivation(t *testing.T) {
	tests := []struct {
		name string
		msg  Msg
		want string
	}{
		{
			name: "fresh inbound",
			msg:  Msg{IsReceiverMe: true},
			want: StageReceived,
		},
		{
			name: "classified story awaiting summary",
			msg:  Msg{IsReceiverMe: true, Classification: strPtr(ClassStory)},
			want: StageClassified,
		},
		{
			name: "summarized story awaiting publish and reply",
			msg: Msg{IsReceiverMe: true, Classification: strPtr(ClassStory),
				Summary: strPtr("A short tale.")},
			want: StageSummarized,
		},
		{
			name: "published story awaiting reply",
			msg: Msg{IsReceiverMe: true, Classification: strPtr(ClassStory),
				Summary: strPtr("A short tale."), PostID: strPtr("p1")},
			want: StagePublished,
		},
		{
			name: "fully handled story",
			msg: Msg{IsReceiverMe: true, Classification: strPtr(ClassStory),
				Summary: strPtr("A short tale."), PostID: strPtr("p1"),
				ReplyBody: strPtr("Thanks!"), ReplyID: strPtr("r1")},
			want: StageDone,
		},
		{
			name: "inquiry awaiting reply",
			msg:  Msg{IsReceiverMe: true, Classification: strPtr(ClassInquiry)},
			want: StageClassified,
		},
		{
			name: "replied inquiry",
			msg: Msg{IsReceiverMe: true, Classification: strPtr(ClassInquiry),
				ReplyBody: strPtr("Hi."), ReplyID: strPtr("r2")},
			want: StageDone,
		},
		{
			name: "spam is terminal immediately",
			msg:  Msg{IsReceiverMe: true, Classification: strPtr(ClassSpam)},
			want: StageDone,
		},
		{
			name: "outbound audit record",
			msg:  Msg{IsReceiverMe: false, Sender: "oso"},
			want: StageDone,
		},
		{
			name: "failed flag wins",
			msg: Msg{IsReceiverMe: true, Classification: strPtr(ClassStory),
				Meta: `{"failed":true,"failed_stage":"summarize"}`},
			want: StageFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.msg.Stage(); got != tt.want {
				t.Errorf("Stage() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTerminal(t *testing.T) {
	spam := Msg{IsReceiverMe: true, Classification: strPtr(ClassSpam)}
	if !spam.Terminal() {
		t.Error("spam classification should be terminal")
	}
	open := Msg{IsReceiverMe: true}
	if open.Terminal() {
		t.Error("unclassified inbound message should not be terminal")
	}
}

func TestRejected(t *testing.T) {
	for _, label := range []string{ClassSpam, ClassInstruction, ClassBanned, ClassIllegal} {
		m := Msg{Classification: strPtr(label)}
		if !m.Rejected() {
			t.Errorf("classification %q should be rejected", label)
		}
	}
	for _, label := range []string{ClassStory, ClassInquiry, ClassOther, ClassBoring} {
		m := Msg{Classification: strPtr(label)}
		if m.Rejected() {
			t.Errorf("classification %q should not be rejected", label)
		}
	}
}

func TestMetaMap(t *testing.T) {
	tests := []struct {
		name string
		meta string
		key  string
		want interface{}
	}{
		{name: "empty doc", meta: "", key: "x", want: nil},
		{name: "string value", meta: `{"redacted_body":"clean"}`, key: "redacted_body", want: "clean"},
		{name: "malformed doc decodes empty", meta: "{not json", key: "x", want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := Msg{Meta: tt.meta}
			got := m.MetaMap()[tt.key]
			if got != tt.want {
				t.Errorf("MetaMap()[%q] = %v, want %v", tt.key, got, tt.want)
			}
		})
	}
}

func TestRetryCount(t *testing.T) {
	m := Msg{Meta: `{"retry_classify":2}`}
	if got := m.RetryCount("classify"); got != 2 {
		t.Errorf("RetryCount(classify) = %d, want 2", got)
	}
	if got := m.RetryCount("summarize"); got != 0 {
		t.Errorf("RetryCount(summarize) = %d, want 0", got)
	}
}

func TestClaimable(t *testing.T) {
	now := time.Now()
	timeout := 5 * time.Minute

	unlocked := Msg{}
	if !unlocked.Claimable(now, timeout) {
		t.Error("unlocked record should be claimable")
	}

	fresh := now.Add(-time.Minute).UnixNano()
	held := Msg{LockedAt: &fresh}
	if held.Claimable(now, timeout) {
		t.Error("freshly locked record should not be claimable")
	}

	stale := now.Add(-10 * time.Minute).UnixNano()
	abandoned := Msg{LockedAt: &stale}
	if !abandoned.Claimable(now, timeout) {
		t.Error("stale lock should be reclaimable")
	}
}

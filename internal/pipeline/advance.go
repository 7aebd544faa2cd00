package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/osobot/oso/internal/models"
	"github.com/osobot/oso/internal/notify"
	"github.com/osobot/oso/internal/store"
)

// Advance drives a claimed record through the stages in strict order. Each
// stage commits its output via a lease-conditioned write before the next
// stage begins, and a stage whose output field is already populated is
// never re-executed, so external effects happen at most once per message.
//
// Stage-local failures (adapter timeouts, malformed responses, publish
// errors) are absorbed here: the retry counter in meta is bumped, the
// lease released, and nil returned so the worker moves on. A non-nil
// return means the store itself is unhealthy and the worker should die.
func (p *Pipeline) Advance(ctx context.Context, msg *models.Msg) error {
	if msg.LockedAt == nil {
		return fmt.Errorf("pipeline: advance %s: record is not claimed", msg.ID)
	}
	token := *msg.LockedAt

	if msg.Terminal() {
		return p.release(msg, token)
	}

	// Stage: classify.
	if msg.Classification == nil {
		ok, err := p.classify(ctx, msg, token)
		if !ok || err != nil {
			return err
		}
		if msg.Rejected() {
			if err := p.store.MergeMeta(msg.ID, token, map[string]interface{}{
				models.MetaRejectedNote: *msg.Classification,
			}); err != nil {
				return p.abandon(msg, err)
			}
			return p.release(msg, token)
		}
	}

	// Stage: redact. The working copy lives in meta; the original body is
	// kept verbatim for audit.
	redacted := msg.MetaString(models.MetaRedactedBody)
	if redacted == "" {
		actx, cancel := p.adapterCtx(ctx)
		clean, err := p.redactor.Redact(actx, msg.Body)
		cancel()
		if err != nil {
			return p.deferStage(msg, token, "redact", err)
		}
		if err := p.store.MergeMeta(msg.ID, token, map[string]interface{}{
			models.MetaRedactedBody: clean,
		}); err != nil {
			return p.abandon(msg, err)
		}
		redacted = clean
	}

	// Stage: summarize (stories only).
	if msg.WantsSummary() && msg.Summary == nil {
		actx, cancel := p.adapterCtx(ctx)
		summary, err := p.summarizer.Summarize(actx, redacted)
		cancel()
		if err != nil {
			return p.deferStage(msg, token, "summarize", err)
		}
		if err := p.store.PersistStage(msg.ID, token, map[string]interface{}{
			"summary": summary,
		}); err != nil {
			return p.abandon(msg, err)
		}
		msg.Summary = &summary
	}

	// Stage: publish decision.
	if msg.WantsSummary() && msg.Summary != nil && msg.PostID == nil {
		want, err := p.shouldPublish(msg)
		if err != nil {
			return err
		}
		if want {
			ok, err := p.publish(ctx, msg, token)
			if !ok || err != nil {
				return err
			}
		}
	}

	// Stage: reply.
	if msg.WantsReply() && msg.ReplyID == nil {
		ok, err := p.reply(ctx, msg, token)
		if !ok || err != nil {
			return err
		}
	}

	return p.release(msg, token)
}

// classify invokes the classifier, persists the label, and attaches a
// best-effort embedding to meta. Returns ok=false when the record should
// not advance further under this claim.
func (p *Pipeline) classify(ctx context.Context, msg *models.Msg, token int64) (bool, error) {
	actx, cancel := p.adapterCtx(ctx)
	label, err := p.classifier.Classify(actx, msg.Subject, msg.Body, imageData(msg))
	cancel()
	if err != nil {
		return false, p.deferStage(msg, token, "classify", err)
	}

	if err := p.store.PersistStage(msg.ID, token, map[string]interface{}{
		"classification": label,
	}); err != nil {
		return false, p.abandon(msg, err)
	}
	msg.Classification = &label

	if p.embedder != nil {
		actx, cancel := p.adapterCtx(ctx)
		vec, err := p.embedder.Embed(actx, msg.Body)
		cancel()
		if err != nil {
			// Embeddings are advisory; a miss never defers the record.
			log.Printf("pipeline: embed %s: %v", msg.ID, err)
		} else if err := p.store.MergeMeta(msg.ID, token, map[string]interface{}{
			models.MetaEmbedding: vec,
		}); err != nil {
			return false, p.abandon(msg, err)
		}
	}
	return true, nil
}

// publish writes the attempt marker, performs the external post, and
// commits post_id only after the post succeeded.
func (p *Pipeline) publish(ctx context.Context, msg *models.Msg, token int64) (bool, error) {
	if _, attempted := msg.MetaMap()[models.MetaPublishAttemptedAt]; attempted {
		// A previous attempt reached the external call without committing
		// post_id. Re-posting risks a duplicate; flag it for the operator.
		log.Printf("pipeline: publish %s: retrying after an uncommitted attempt (possible duplicate post)", msg.ID)
	}
	if err := p.store.MergeMeta(msg.ID, token, map[string]interface{}{
		models.MetaPublishAttemptedAt: time.Now().Unix(),
	}); err != nil {
		return false, p.abandon(msg, err)
	}

	actx, cancel := p.adapterCtx(ctx)
	postID, err := p.publisher.Publish(actx, *msg.Summary, imageData(msg))
	cancel()
	if err != nil {
		return false, p.deferStage(msg, token, "publish", err)
	}

	if err := p.store.PersistStage(msg.ID, token, map[string]interface{}{
		"post_id": postID,
	}); err != nil {
		return false, p.abandon(msg, err)
	}
	msg.PostID = &postID

	p.notify(notify.Event{
		MsgID:    msg.ID,
		Stage:    models.StagePublished,
		Reason:   "summary published as " + postID,
		Severity: notify.SeverityInfo,
	})
	return true, nil
}

// reply drafts a response from the thread history, sends it, and commits
// reply_body and reply_id together only after the send succeeded. The sent
// reply is then stored as its own outbound record for thread continuity.
func (p *Pipeline) reply(ctx context.Context, msg *models.Msg, token int64) (bool, error) {
	thread, err := p.store.Thread(msg, p.lookback, p.threadLimit)
	if err != nil {
		return false, err
	}

	actx, cancel := p.adapterCtx(ctx)
	draft, err := p.replier.DraftReply(actx, ReplyContext{Msg: *msg, Thread: thread})
	cancel()
	if err != nil {
		return false, p.deferStage(msg, token, "reply", err)
	}

	actx, cancel = p.adapterCtx(ctx)
	replyID, err := p.publisher.SendReply(actx, msg.Sender, msg.ID, draft)
	cancel()
	if err != nil {
		return false, p.deferStage(msg, token, "reply", err)
	}

	if err := p.store.PersistStage(msg.ID, token, map[string]interface{}{
		"reply_body": draft,
		"reply_id":   replyID,
	}); err != nil {
		return false, p.abandon(msg, err)
	}
	msg.ReplyBody = &draft
	msg.ReplyID = &replyID

	outbound := &models.Msg{
		ID:           replyID,
		CreatedAt:    time.Now().Unix(),
		Source:       msg.Source,
		Sender:       msg.Receiver,
		Receiver:     msg.Sender,
		IsReceiverMe: false,
		Subject:      msg.Subject,
		Body:         draft,
	}
	if _, err := p.store.InsertIfAbsent(outbound); err != nil {
		// Audit record only; the reply itself is already committed.
		log.Printf("pipeline: record outbound reply %s: %v", replyID, err)
	}
	return true, nil
}

// deferStage handles a recoverable stage failure: bump the retry counter,
// flip to the terminal Failed state once retries are exhausted, and release
// the lease so another worker picks the record up later.
func (p *Pipeline) deferStage(msg *models.Msg, token int64, stage string, cause error) error {
	attempts := msg.RetryCount(stage) + 1
	log.Printf("pipeline: %s %s failed (attempt %d/%d): %v", stage, msg.ID, attempts, p.maxRetries, cause)

	kv := map[string]interface{}{models.MetaRetryPrefix + stage: attempts}
	exhausted := attempts >= p.maxRetries
	if exhausted {
		kv[models.MetaFailed] = true
		kv[models.MetaFailedStage] = stage
	}
	if err := p.store.MergeMeta(msg.ID, token, kv); err != nil {
		return p.abandon(msg, err)
	}
	if exhausted {
		p.notify(notify.Event{
			MsgID:    msg.ID,
			Stage:    stage,
			Reason:   fmt.Sprintf("gave up after %d attempts: %v", attempts, cause),
			Severity: notify.SeverityError,
		})
	}
	return p.release(msg, token)
}

// abandon handles a failed lease-conditioned write. A lost lease means the
// record was reclaimed: log and walk away without touching it further. Any
// other store error is fatal to the worker.
func (p *Pipeline) abandon(msg *models.Msg, err error) error {
	if errors.Is(err, store.ErrLostLease) {
		log.Printf("pipeline: %s: lease lost, abandoning attempt", msg.ID)
		return nil
	}
	return err
}

// release clears the lease. Losing the lease at release time is harmless.
func (p *Pipeline) release(msg *models.Msg, token int64) error {
	if err := p.store.Release(msg.ID, token); err != nil {
		return p.abandon(msg, err)
	}
	return nil
}

func (p *Pipeline) notify(ev notify.Event) {
	if p.notifier == nil {
		return
	}
	if err := p.notifier.Notify(context.Background(), ev); err != nil {
		log.Printf("pipeline: notify %s: %v", ev.MsgID, err)
	}
}

func imageData(msg *models.Msg) [][]byte {
	if len(msg.Images) == 0 {
		return nil
	}
	out := make([][]byte, len(msg.Images))
	for i, img := range msg.Images {
		out[i] = img.Data
	}
	return out
}

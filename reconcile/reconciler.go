package reconcile

import (
	"context"
	"log/slog"
	"time"

	"github.com/noxrp/stream-notifier/platform"
	"github.com/noxrp/stream-notifier/store"
	"github.com/noxrp/stream-notifier/telemetry"
)

// Payload is what a live notification says.
type Payload struct {
	Platform     platform.Name
	Handle       string
	DiscordID    string
	Title        string
	CategoryName string
	URL          string
	// MentionHere prefixes the message with @here.
	MentionHere bool
}

// Notifier posts and removes notification messages.
type Notifier interface {
	// Send posts a notification and returns the new message id.
	Send(ctx context.Context, channelID string, p Payload) (string, error)
	// Delete removes a message. A message that is already gone is not an error.
	Delete(ctx context.Context, channelID, messageID string) error
	// Exists probes a message. A definite "absent" is (false, nil); an error
	// means the probe itself failed.
	Exists(ctx context.Context, channelID, messageID string) (bool, error)
}

// RoleManager grants and revokes the live role. Both calls are idempotent.
type RoleManager interface {
	Grant(ctx context.Context, userID string) error
	Revoke(ctx context.Context, userID string) error
}

// Reconciler applies the live/offline decision for one streamer to its
// active message record.
//
// Per (platform, handle) there is either no record or one record naming the
// message posted for a session. A record is only dropped after its message
// is confirmed deleted or confirmed absent, and the live role is only
// revoked after that, so a failed delete is retried next tick and never
// leads to a duplicate send.
type Reconciler struct {
	Notifier Notifier
	// Roles may be nil when no live role is configured.
	Roles  RoleManager
	Now    func() time.Time
	Logger *slog.Logger
}

// New returns a Reconciler using the wall clock and the default logger.
func New(n Notifier, roles RoleManager) *Reconciler {
	return &Reconciler{Notifier: n, Roles: roles, Now: time.Now, Logger: slog.Default()}
}

func (r *Reconciler) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

func (r *Reconciler) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func recordChannel(rec store.ActiveMessage, fallback string) string {
	if rec.ChannelID != "" {
		return rec.ChannelID
	}
	return fallback
}

// EnsureLive makes sure a notification for sessionKey exists in channelID.
// It reports whether active changed.
func (r *Reconciler) EnsureLive(ctx context.Context, active map[string]store.ActiveMessage, channelID, sessionKey string, p Payload) bool {
	ctx, span := telemetry.StartSpan(ctx, "reconcile", "reconcile.live",
		telemetry.PlatformAttr(string(p.Platform)), telemetry.HandleAttr(p.Handle))
	defer span.End()
	log := r.logger().With(slog.String("platform", string(p.Platform)), slog.String("handle", p.Handle))

	if r.Roles != nil && p.DiscordID != "" {
		if err := r.Roles.Grant(ctx, p.DiscordID); err != nil {
			log.Warn("grant live role failed", slog.Any("err", err))
		}
	}

	changed := false
	prev, had := active[p.Handle]
	if had && len(prev.Superseded) > 0 {
		if prev.Superseded, changed = r.deleteSuperseded(ctx, log, p.Platform, prev.Superseded, channelID); changed {
			active[p.Handle] = prev
		}
	}

	var superseded []store.MessageRef
	if had {
		superseded = prev.Superseded
	}
	switch {
	case had && prev.SessionKey == sessionKey:
		exists, err := r.Notifier.Exists(ctx, recordChannel(prev, channelID), prev.MessageID)
		if err != nil {
			// unknown: keeping the record avoids a duplicate post
			log.Warn("probe notification failed; keeping record", slog.String("message_id", prev.MessageID), slog.Any("err", err))
			return changed
		}
		if exists {
			return changed
		}
		log.Info("notification vanished; reposting", slog.String("message_id", prev.MessageID))
	case had:
		// new session without an observed offline gap; a failed delete must
		// not hold back the new notification, so it is carried along
		if err := r.Notifier.Delete(ctx, recordChannel(prev, channelID), prev.MessageID); err != nil {
			telemetry.CountNotificationFailure(string(p.Platform), "delete")
			log.Warn("delete previous session notification failed; will retry", slog.String("message_id", prev.MessageID), slog.Any("err", err))
			superseded = append(superseded, store.MessageRef{MessageID: prev.MessageID, ChannelID: recordChannel(prev, channelID)})
		} else {
			telemetry.CountNotification(string(p.Platform), "deleted")
		}
	}

	msgID, err := r.Notifier.Send(ctx, channelID, p)
	if err != nil || msgID == "" {
		// the previous record stays, so the next tick tries again
		telemetry.CountNotificationFailure(string(p.Platform), "send")
		telemetry.RecordError(span, err)
		log.Warn("send notification failed", slog.Any("err", err))
		return changed
	}
	telemetry.CountNotification(string(p.Platform), "sent")
	active[p.Handle] = store.ActiveMessage{
		MessageID:  msgID,
		SessionKey: sessionKey,
		CreatedAt:  r.now().UnixMilli(),
		ChannelID:  channelID,
		Superseded: superseded,
	}
	log.Info("live notification sent", slog.String("message_id", msgID), slog.String("session", sessionKey))
	return true
}

// EnsureOffline removes the notification of handle, if any, and then revokes
// the live role of discordID. It reports whether active changed.
func (r *Reconciler) EnsureOffline(ctx context.Context, active map[string]store.ActiveMessage, channelID string, p platform.Name, handle, discordID string) bool {
	prev, ok := active[handle]
	if !ok || prev.MessageID == "" {
		return false
	}
	ctx, span := telemetry.StartSpan(ctx, "reconcile", "reconcile.offline",
		telemetry.PlatformAttr(string(p)), telemetry.HandleAttr(handle))
	defer span.End()
	log := r.logger().With(slog.String("platform", string(p)), slog.String("handle", handle))

	changed := false
	if len(prev.Superseded) > 0 {
		if prev.Superseded, changed = r.deleteSuperseded(ctx, log, p, prev.Superseded, channelID); changed {
			active[handle] = prev
		}
	}

	if err := r.Notifier.Delete(ctx, recordChannel(prev, channelID), prev.MessageID); err != nil {
		telemetry.CountNotificationFailure(string(p), "delete")
		telemetry.RecordError(span, err)
		log.Warn("delete notification failed; will retry", slog.String("message_id", prev.MessageID), slog.Any("err", err))
		return changed
	}
	telemetry.CountNotification(string(p), "deleted")
	if len(prev.Superseded) > 0 {
		// older messages are still up; the record stays until they are gone
		return changed
	}

	if r.Roles != nil && discordID != "" {
		if err := r.Roles.Revoke(ctx, discordID); err != nil {
			log.Warn("revoke live role failed", slog.Any("err", err))
		}
	}
	delete(active, handle)
	log.Info("live notification removed", slog.String("message_id", prev.MessageID))
	return true
}

// deleteSuperseded retries the given deletes and returns the ones that still
// failed, plus whether any succeeded.
func (r *Reconciler) deleteSuperseded(ctx context.Context, log *slog.Logger, p platform.Name, refs []store.MessageRef, channelID string) ([]store.MessageRef, bool) {
	var rest []store.MessageRef
	for _, ref := range refs {
		ch := ref.ChannelID
		if ch == "" {
			ch = channelID
		}
		if err := r.Notifier.Delete(ctx, ch, ref.MessageID); err != nil {
			telemetry.CountNotificationFailure(string(p), "delete")
			log.Warn("delete superseded notification failed; will retry", slog.String("message_id", ref.MessageID), slog.Any("err", err))
			rest = append(rest, ref)
			continue
		}
		telemetry.CountNotification(string(p), "deleted")
		log.Info("superseded notification removed", slog.String("message_id", ref.MessageID))
	}
	return rest, len(rest) != len(refs)
}

package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"

	"github.com/maruthi2426/merge-bot/internal/auth"
	"github.com/maruthi2426/merge-bot/internal/delivery"
	"github.com/maruthi2426/merge-bot/internal/logx"
	"github.com/maruthi2426/merge-bot/internal/merge"
	"github.com/maruthi2426/merge-bot/internal/session"
	"github.com/maruthi2426/merge-bot/internal/telegram"
)

// --- Handlers ---

func (s *server) onMessage(m *tgbotapi.Message) {
	if m.From == nil {
		return
	}
	userID, chatID := m.From.ID, m.Chat.ID

	log.Info().
		Int64("chat_id", chatID).
		Int64("user_id", userID).
		Msg("message received")

	if m.IsCommand() {
		s.onCommand(m)
		return
	}

	att, ok := telegram.ExtractFile(m)
	if !ok || !s.chatAllowed(chatID) {
		return
	}
	caption := m.Caption
	s.lanes.Submit(userID, func(ctx context.Context) {
		s.collect(logx.WithUser(ctx, userID), chatID, userID, att, caption)
	})
}

func (s *server) onCommand(m *tgbotapi.Message) {
	userID, chatID := m.From.ID, m.Chat.ID
	args := strings.Fields(m.CommandArguments())

	switch m.Command() {
	case "start":
		_ = s.tg.SendMenu(chatID, "Hi! Choose an operation:")
	case "help":
		s.reply(chatID, helpText)
	case "ping":
		s.reply(chatID, "pong")
	case "authorise", "authorize":
		s.cmdAuthorise(chatID, userID, args)
	case "status":
		s.cmdStatus(chatID, userID)
	case "addadmin", "deladmin":
		s.cmdAdminEdit(chatID, userID, m.Command(), args)
	case "admins":
		s.cmdAdmins(chatID, userID)
	case "done":
		if !s.chatAllowed(chatID) {
			return
		}
		s.lanes.Submit(userID, func(ctx context.Context) {
			s.done(logx.WithUser(ctx, userID), chatID, userID)
		})
	case "cancel":
		s.lanes.Submit(userID, func(ctx context.Context) {
			s.cancel(logx.WithUser(ctx, userID), chatID, userID)
		})
	default:
		s.reply(chatID, "Unknown command. Use /help.")
	}
}

func (s *server) onCallback(cq *tgbotapi.CallbackQuery) {
	if cq.Message == nil || cq.From == nil {
		_ = s.tg.AnswerCallback(cq.ID, "", false)
		return
	}
	userID, chatID, msgID := cq.From.ID, cq.Message.Chat.ID, cq.Message.MessageID

	if !s.chatAllowed(chatID) {
		_ = s.tg.AnswerCallback(cq.ID, "Not allowed in this chat.", true)
		return
	}
	op, err := merge.ParseOperation(cq.Data)
	if err != nil {
		_ = s.tg.AnswerCallback(cq.ID, "Unknown operation.", false)
		return
	}
	_ = s.tg.AnswerCallback(cq.ID, "", false)

	log.Info().
		Int64("user_id", userID).
		Str("operation", op.String()).
		Msg("operation selected")

	s.lanes.Submit(userID, func(ctx context.Context) {
		dropped, err := s.sessions.ChooseOperation(userID, op)
		if err != nil {
			s.reply(chatID, "Unknown operation.")
			return
		}
		s.purge(ctx, userID, dropped, "replaced")
		if err := s.tg.EditText(chatID, msgID, op.Prompt()); err != nil {
			s.reply(chatID, op.Prompt())
		}
	})
}

func (s *server) chatAllowed(chatID int64) bool {
	return s.cfg.Telegram.AllowedChat == 0 || s.cfg.Telegram.AllowedChat == chatID
}

func (s *server) reply(chatID int64, text string) {
	if err := s.tg.SendText(s.ctx, chatID, text); err != nil {
		log.Warn().Err(err).Int64("chat_id", chatID).Bool("rate_limited", telegram.IsTooManyRequests(err)).Msg("send failed")
	}
}

// --- Collection flow (runs on the user's lane) ---

func (s *server) collect(ctx context.Context, chatID, userID int64, att telegram.Attachment, caption string) {
	_, gen, err := s.sessions.Generation(userID)
	if err != nil {
		s.reply(chatID, sessionReply(merge.OpUnset, err))
		return
	}

	obj, err := s.ingest.Ingest(ctx, userID, att.FileID, att.Name)
	if err != nil {
		lg := logx.FromCtx(ctx)
		lg.Error().Err(err).Str("name", att.Name).Msg("ingest failed")
		s.reply(chatID, fmt.Sprintf("Could not store %s. Please send it again.", att.Name))
		return
	}

	f := session.File{SourceRef: att.FileID, Key: obj.Key, Name: att.Name}
	if err := s.sessions.AddFile(userID, gen, f, caption); err != nil {
		s.purge(ctx, userID, []session.File{f}, "replaced")
		s.reply(chatID, sessionReply(merge.OpUnset, err))
		return
	}
	s.reply(chatID, "Queued: "+att.Name)
}

func (s *server) done(ctx context.Context, chatID, userID int64) {
	var op merge.Operation
	if cur, ok := s.sessions.Get(userID); ok {
		op = cur.Operation
	}
	snap, err := s.sessions.RequestDone(userID)
	if err != nil {
		s.reply(chatID, sessionReply(op, err))
		return
	}

	ok, err := s.auth.Authorized(ctx, userID)
	if err != nil || !ok {
		if err != nil {
			lg := logx.FromCtx(ctx)
			lg.Error().Err(err).Msg("authorization check failed")
		}
		if !s.sessions.Release(snap) {
			s.purge(ctx, userID, snap.Files, "abandoned")
		}
		s.reply(chatID, notAuthorisedText)
		return
	}

	log.Info().
		Int64("user_id", userID).
		Str("operation", snap.Operation.String()).
		Int("files", len(snap.Files)).
		Msg("merge requested")
	s.reply(chatID, "Merging…")

	s.merges.Add(1)
	go func() {
		defer s.merges.Done()
		s.runMerge(s.ctx, chatID, snap)
	}()
}

func (s *server) runMerge(ctx context.Context, chatID int64, snap session.Snapshot) {
	ctx = logx.WithUser(ctx, snap.UserID)
	lg := logx.FromCtx(ctx)

	res, err := s.pipe.Run(ctx, snap)
	if err != nil {
		kept := s.sessions.Release(snap)
		if !kept {
			s.purge(ctx, snap.UserID, snap.Files, "abandoned")
		}
		s.reply(chatID, failureText(err, kept))
		return
	}

	s.sessions.Complete(snap)
	if err := s.jobs.ExpireOutput(context.WithoutCancel(ctx), snap.UserID, res.Object.Key, s.cfg.Storage.OutputRetention); err != nil {
		lg.Error().Err(err).Str("key", res.Object.Key).Msg("schedule output expiry failed")
	}
	s.purge(ctx, snap.UserID, snap.Files, "merged")

	rep, err := s.deliver.Deliver(ctx, delivery.Request{
		UserID: snap.UserID,
		ChatID: chatID,
		Key:    res.Object.Key,
		Size:   res.Object.Size,
	})
	if err != nil {
		lg.Error().Err(err).Str("key", res.Object.Key).Msg("delivery failed")
		s.reply(chatID, "Merged, but no download link could be created. Please try again later.")
		return
	}
	lg.Info().
		Bool("link_sent", rep.LinkSent).
		Bool("delivered", rep.Delivered()).
		Str("merge_id", res.MergeID).
		Msg("merge delivered")
}

func (s *server) cancel(ctx context.Context, chatID, userID int64) {
	files := s.sessions.Reset(userID)
	s.purge(ctx, userID, files, "cancelled")
	s.reply(chatID, "Session cancelled. Use /start to choose an operation.")
}

// purge schedules deletion of source objects nothing refers to anymore.
func (s *server) purge(ctx context.Context, userID int64, files []session.File, reason string) {
	keys := fileKeys(files)
	if len(keys) == 0 {
		return
	}
	if err := s.jobs.Purge(context.WithoutCancel(ctx), userID, keys, reason); err != nil {
		lg := logx.FromCtx(ctx)
		lg.Error().Err(err).Int("keys", len(keys)).Str("reason", reason).Msg("enqueue purge failed")
	}
}

// --- Authorization commands ---

func (s *server) cmdAuthorise(chatID, caller int64, args []string) {
	if len(args) < 1 {
		s.reply(chatID, "Usage: /authorise <telegram_id> [gplinks_token]")
		return
	}
	target, err := parseUserID(args[0])
	if err != nil {
		s.reply(chatID, "telegram_id must be an integer.")
		return
	}
	token := ""
	if len(args) > 1 {
		token = args[1]
	}

	rec, err := s.auth.Authorise(s.ctx, caller, target, token)
	switch {
	case errors.Is(err, auth.ErrTokenRequired):
		s.reply(chatID, "Missing gplinks_token (only admins may omit it).")
		return
	case err != nil:
		log.Error().Err(err).Int64("user_id", caller).Msg("authorise failed")
		s.reply(chatID, "Could not store the authorisation. Try again later.")
		return
	}
	log.Info().Int64("user_id", caller).Int64("target", target).Time("expires_at", rec.ExpiresAt).Msg("user authorised")
	s.reply(chatID, fmt.Sprintf("Authorised %d for %s (until %s).", target, formatTTL(s.auth.TTL()), rec.ExpiresAt.Format(time.RFC3339)))
}

func (s *server) cmdStatus(chatID, userID int64) {
	rec, ok, err := s.auth.Status(s.ctx, userID)
	if err != nil {
		log.Error().Err(err).Int64("user_id", userID).Msg("status lookup failed")
		s.reply(chatID, "Could not read your status. Try again later.")
		return
	}
	if !ok || !rec.Active(time.Now()) {
		if admin, err := s.auth.IsAdmin(s.ctx, userID); err == nil && admin {
			s.reply(chatID, "Admin: no authorisation needed.")
			return
		}
		s.reply(chatID, "Not authorised.")
		return
	}
	s.reply(chatID, "Authorised until "+rec.ExpiresAt.Format(time.RFC3339))
}

func (s *server) cmdAdminEdit(chatID, caller int64, cmd string, args []string) {
	if len(args) < 1 {
		s.reply(chatID, fmt.Sprintf("Usage: /%s <telegram_id>", cmd))
		return
	}
	target, err := parseUserID(args[0])
	if err != nil {
		s.reply(chatID, "telegram_id must be an integer.")
		return
	}

	if cmd == "addadmin" {
		err = s.auth.AddAdmin(s.ctx, caller, target)
	} else {
		err = s.auth.RemoveAdmin(s.ctx, caller, target)
	}
	switch {
	case errors.Is(err, auth.ErrAdminOnly):
		s.reply(chatID, "Admins only.")
	case err != nil:
		log.Error().Err(err).Str("cmd", cmd).Msg("admin update failed")
		s.reply(chatID, "Could not update admins. Try again later.")
	case cmd == "addadmin":
		s.reply(chatID, fmt.Sprintf("Added admin: %d", target))
	default:
		s.reply(chatID, fmt.Sprintf("Removed admin: %d", target))
	}
}

func (s *server) cmdAdmins(chatID, caller int64) {
	ids, err := s.auth.Admins(s.ctx, caller)
	switch {
	case errors.Is(err, auth.ErrAdminOnly):
		s.reply(chatID, "Admins only.")
	case err != nil:
		log.Error().Err(err).Msg("list admins failed")
		s.reply(chatID, "Could not list admins. Try again later.")
	default:
		s.reply(chatID, adminsText(ids))
	}
}

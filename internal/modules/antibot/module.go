package antibot

import (
	"context"
	"fmt"
	"time"

	"chatguard/internal/enforce"
	"chatguard/internal/platform"
	"chatguard/internal/storage"

	"go.uber.org/zap"
)

// Module applies the scorer's verdicts: delete on shouldAct, additionally
// mute on shouldMute.
type Module struct {
	scorer   *Scorer
	enforcer *enforce.Enforcer
	logger   *zap.Logger
	muteFor  time.Duration
}

func NewModule(scorer *Scorer, enforcer *enforce.Enforcer, logger *zap.Logger, muteMinutes int) *Module {
	return &Module{
		scorer:   scorer,
		enforcer: enforcer,
		logger:   logger,
		muteFor:  time.Duration(muteMinutes) * time.Minute,
	}
}

func (m *Module) Handle(ctx context.Context, msg *platform.Message, linkCount int, meta string) bool {
	assessment := m.scorer.Assess(ctx, msg, linkCount)
	if !assessment.ShouldAct {
		return false
	}

	names := make([]string, 0, len(assessment.Signals))
	for _, signal := range assessment.Signals {
		names = append(names, signal.Name)
	}
	m.logger.Info("antibot verdict",
		zap.Int64("chat_id", msg.ChatID),
		zap.Int64("user_id", msg.Sender.ID),
		zap.Float64("total", assessment.Total),
		zap.Strings("signals", names),
		zap.Bool("mute", assessment.ShouldMute))

	meta = fmt.Sprintf("%s score=%.0f", meta, assessment.Total)
	if !m.enforcer.Delete(ctx, msg.ChatID, msg.Sender.ID, msg.ID, storage.ReasonAntiBot, meta) {
		return true
	}
	if assessment.ShouldMute {
		m.enforcer.Mute(ctx, msg.ChatID, msg.Sender.ID, m.muteFor, storage.ReasonAntiBot, meta)
	}
	return true
}

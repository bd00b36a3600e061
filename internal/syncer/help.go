package syncer

import (
	"context"

	"github.com/p-blackswan/roomsync/internal/discovery"
	"github.com/p-blackswan/roomsync/internal/help"
	"github.com/p-blackswan/roomsync/internal/variables"
)

// checkHelp clears an outstanding help request once the crew closes it on
// the help requests board.
func (o *Orchestrator) checkHelp(ctx context.Context, cfg discovery.SyncedConfiguration) {
	if o.help == nil {
		return
	}
	snap := o.session.snapshot()
	if snap.HelpStatus != variables.HelpRequested || snap.HelpTimestamp == "" {
		return
	}

	closed, err := o.help.IsClosed(ctx, cfg.HelpRequestsBoardID, snap.HelpTimestamp)
	if err != nil {
		o.logger.Warn().Err(err).Msg("help request check failed")
		return
	}
	if !closed {
		return
	}

	o.logger.Info().Str("timestamp", snap.HelpTimestamp).Msg("help request closed on board")
	o.clearHelp()
}

func (o *Orchestrator) clearHelp() {
	s := o.session
	s.mu.Lock()
	s.helpStatus = variables.HelpNotRequested
	s.helpTimestamp = ""
	s.mu.Unlock()

	o.vars.SetMany(map[string]string{
		variables.HelpRequestStatus:    variables.HelpNotRequested,
		variables.HelpRequestTimestamp: "",
	})
}

// requestHelp records the request and notifies the crew in the background.
func (o *Orchestrator) requestHelp() help.Request {
	cfg, _ := o.resolver.Configuration()
	settings := o.Settings()
	now := o.now().In(o.loc)

	snap := o.session.snapshot()
	req := help.NewRequest(now,
		settings.KitID,
		orUnknown(cfg.MyRoomID),
		settings.HelpGroup,
		settings.HelpCrew,
		orUnknown(cfg.HelpRequestsBoardID),
		nameOf(snap.Triple.Current),
	)

	s := o.session
	s.mu.Lock()
	s.helpStatus = variables.HelpRequested
	s.helpTimestamp = req.Timestamp
	s.mu.Unlock()

	o.vars.SetMany(map[string]string{
		variables.HelpRequestStatus:    variables.HelpRequested,
		variables.HelpRequestTimestamp: req.Timestamp,
	})

	if o.notifier != nil {
		o.helpWG.Add(1)
		go func() {
			defer o.helpWG.Done()
			ctx, cancel := context.WithTimeout(context.Background(), settings.NotifyTimeout)
			defer cancel()
			if err := o.notifier.Notify(ctx, req); err != nil {
				o.metrics.RecordError("help", "notify")
				o.logger.Warn().Err(err).Str("request_id", req.ID).Msg("help notification failed")
			}
		}()
	}

	o.logger.Info().Str("request_id", req.ID).Str("room", req.Room).Msg("help requested")
	return req
}

func orUnknown(s string) string {
	if s == "" {
		return variables.Unknown
	}
	return s
}

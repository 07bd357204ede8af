// Package notify delivers alerts raised by orchestration runs. Sending is
// fire and forget: a failed delivery is logged, never returned to the run.
package notify

import (
	"context"

	"arkmanager/internal/domain"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Alert struct {
	Type      domain.AlertType `json:"-"`
	TypeName  string           `json:"type"`
	ProfileID string           `json:"profileId"`
	Profile   string           `json:"profile"`
	Message   string           `json:"message"`
}

type Notifier interface {
	Send(ctx context.Context, alert Alert)
}

func NewAlert(t domain.AlertType, s domain.ProfileSnapshot, message string) Alert {
	return Alert{Type: t, TypeName: t.String(), ProfileID: s.ID, Profile: s.Name, Message: message}
}

// LogNotifier writes alerts to the application log.
type LogNotifier struct {
	Log zerolog.Logger
}

func (n LogNotifier) Send(_ context.Context, a Alert) {
	ev := n.Log.Info()
	if a.Type == domain.AlertError {
		ev = n.Log.Error()
	}
	ev.Str("alert", a.TypeName).Str("profile", a.Profile).Msg(a.Message)
}

// Filtered drops alert types that enabled rejects.
type Filtered struct {
	Next    Notifier
	Enabled func(name string) bool
}

func (f Filtered) Send(ctx context.Context, a Alert) {
	if f.Enabled != nil && !f.Enabled(a.TypeName) {
		return
	}
	f.Next.Send(ctx, a)
}

// Multi fans an alert out to several notifiers. A panicking notifier does
// not stop the others.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, a Alert) {
	for _, n := range m {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Error().Interface("panic", r).Str("alert", a.TypeName).Msg("Notifier panicked")
				}
			}()
			n.Send(ctx, a)
		}()
	}
}

// Func adapts a plain function to Notifier.
type Func func(ctx context.Context, a Alert)

func (f Func) Send(ctx context.Context, a Alert) { f(ctx, a) }

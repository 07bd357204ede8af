package notify

import (
	"bytes"
	"context"
	"testing"

	"arkmanager/internal/domain"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestFilteredAndMulti(t *testing.T) {
	var got []string
	rec := Func(func(_ context.Context, a Alert) { got = append(got, a.TypeName) })
	panicky := Func(func(context.Context, Alert) { panic("boom") })

	n := Filtered{
		Next:    Multi{panicky, rec},
		Enabled: func(name string) bool { return name != "Backup" },
	}

	s := (&domain.Profile{ID: "1", Name: "Island"}).Snapshot()
	n.Send(context.Background(), NewAlert(domain.AlertBackup, s, "done"))
	n.Send(context.Background(), NewAlert(domain.AlertStartup, s, "up"))

	assert.Equal(t, []string{"Startup"}, got)
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	n := LogNotifier{Log: zerolog.New(&buf)}
	s := (&domain.Profile{ID: "1", Name: "Island"}).Snapshot()

	n.Send(context.Background(), NewAlert(domain.AlertError, s, "it broke"))
	assert.Contains(t, buf.String(), `"level":"error"`)
	assert.Contains(t, buf.String(), `"alert":"Error"`)
	assert.Contains(t, buf.String(), "it broke")
}

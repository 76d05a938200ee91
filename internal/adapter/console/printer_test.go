package console

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/x/ansi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tracechat/internal/adapter/i18n"
	"tracechat/internal/domain"
	"tracechat/internal/usecase/cards"
	"tracechat/internal/usecase/transcript"
)

type fixedClock struct{ t time.Time }

func (c *fixedClock) Now() time.Time { return c.t }

func TestPrinterPrintsCardsOnceOnCompletion(t *testing.T) {
	var buf bytes.Buffer
	clock := &fixedClock{t: time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)}
	p := New(&buf, i18n.MustNew("en"), clock, 80)

	tr := transcript.New()
	tr.AddObserver(p)
	cm := cards.NewManager(cards.ManagerDeps{Clock: clock, OnChange: p.OnCardChange})

	tr.AddUser("count rows")
	card := cm.Create(tr, domain.CardReasoning, "Reasoning", "", "")
	cm.Update(card, "scanning the sheet", domain.ContentText)
	assert.NotContains(t, buf.String(), "scanning the sheet", "running cards are not printed")

	clock.t = clock.t.Add(1500 * time.Millisecond)
	require.True(t, cm.Complete(card, true))
	cm.ToggleExpand(card)

	out := ansi.Strip(buf.String())
	assert.Contains(t, out, "count rows")
	assert.Equal(t, 1, strings.Count(out, "scanning the sheet"))
	assert.Contains(t, out, "1.5s")
}

func TestPrinterEntries(t *testing.T) {
	var buf bytes.Buffer
	p := New(&buf, i18n.MustNew("en"), nil, 0)
	tr := transcript.New()
	tr.AddObserver(p)

	tr.AddNotice("History cleared.")
	tr.AddError("Error: quota exceeded")
	tr.AddFinal("**done**", "DONE", 2*time.Second, true)

	out := ansi.Strip(buf.String())
	assert.Contains(t, out, "History cleared.")
	assert.Contains(t, out, "Error: quota exceeded")
	assert.Contains(t, out, "DONE")
	assert.NotContains(t, out, "**done**")
	assert.Contains(t, out, "Completed in 2.0s")
}

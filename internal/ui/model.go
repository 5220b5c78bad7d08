package ui

import (
	"context"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"cwinsights/internal/ai"
	"cwinsights/internal/config"
	"cwinsights/internal/query"
	"cwinsights/internal/session"
)

// Deps are the services the screen drives.
type Deps struct {
	Manager  *session.Manager
	Profiles []string
	// AI is optional; query drafting is off without it.
	AI *ai.OpenAIClient
}

type Model struct {
	ctx context.Context
	mgr *session.Manager
	ai  *ai.OpenAIClient

	styles Styles
	keymap KeyMap
	spin   spinner.Model
	tbl    table.Model

	// Query form
	focus      focus
	collapsed  bool
	region     textinput.Model
	profiles   []string
	profileIdx int
	logGroups  textinput.Model
	relative   bool
	relIdx     int
	from       textinput.Model
	to         textinput.Model
	queryText  textarea.Model
	// autoCollapsed is set once the form folded away for the current
	// session's first rows.
	autoCollapsed string

	// Results
	view     session.View
	quick    textinput.Model
	quickSeq int
	input    textinput.Model

	inlineMode inlineMode
	drafting   bool

	// Modal popup
	modalActive bool
	modalKind   modalKind
	modalVP     viewport.Model
	modalTitle  string
	modalBody   string
	detailPlain string
	colSel      int
	profileSel  int
	helpItems   []helpItem
	helpSel     int

	lastMsg    string
	lastErr    string
	termWidth  int
	termHeight int
}

func initialModel(ctx context.Context, cfg *config.Config, deps Deps) *Model {
	m := &Model{
		ctx:      ctx,
		mgr:      deps.Manager,
		ai:       deps.AI,
		styles:   NewStyles(cfg.Theme != config.ThemeLight),
		keymap:   DefaultKeyMap(),
		spin:     spinner.New(),
		profiles: deps.Profiles,
		relative: true,
		relIdx:   query.DefaultRelativeIndex(),

		termWidth:  100,
		termHeight: 30,
	}
	m.spin.Spinner = spinner.Dot

	m.region = newInput("", 32)
	m.region.SetValue(m.mgr.Region())
	m.logGroups = newInput("/aws/lambda/my-function, /ecs/api", 512)
	m.logGroups.SetValue(cfg.LogGroup)
	m.from = newInput(query.TimeLayout, 19)
	m.to = newInput(query.TimeLayout, 19)
	if i, r := query.FindRelative(cfg.Range); i >= 0 {
		m.relIdx = i
	} else if r.Span > 0 {
		// not one of the options: start in absolute mode with that span
		rng := r.Range(m.mgr.Now())
		m.relative = false
		m.from.SetValue(query.FormatTime(rng.Start, nil))
		m.to.SetValue(query.FormatTime(rng.End, nil))
	}
	for i, p := range m.profiles {
		if p == m.mgr.Profile() {
			m.profileIdx = i
		}
	}

	m.queryText = textarea.New()
	m.queryText.ShowLineNumbers = false
	m.queryText.CharLimit = 10000
	m.queryText.Prompt = ""
	m.queryText.SetHeight(4)
	m.queryText.SetValue(cfg.Query)

	m.quick = newInput("+error -health level:warn", 256)
	m.quick.Prompt = "/"
	m.input = newInput("", 512)

	m.tbl = table.New(table.WithFocused(true), table.WithHeight(10))
	ts := table.DefaultStyles()
	ts.Header = m.styles.TableStyles.Header
	ts.Cell = m.styles.TableStyles.Cell
	ts.Selected = m.styles.TableStyles.Selected
	m.tbl.SetStyles(ts)

	m.modalVP = viewport.New(80, 20)
	m.setFocus(focusLogGroup)
	if m.logGroups.Value() != "" {
		m.setFocus(focusQuery)
	}
	return m
}

func newInput(placeholder string, limit int) textinput.Model {
	in := textinput.New()
	in.Placeholder = placeholder
	in.CharLimit = limit
	in.Prompt = ""
	return in
}

func Run(ctx context.Context, cfg *config.Config, deps Deps) error {
	m := initialModel(ctx, cfg, deps)
	opts := []tea.ProgramOption{tea.WithContext(ctx), tea.WithAltScreen()}
	if cfg.IsPipedStdin {
		// stdin carries log lines; read keys from the terminal
		opts = append(opts, tea.WithInputTTY())
	}
	p := tea.NewProgram(m, opts...)
	_, err := p.Run()
	return err
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(waitEvent(m.mgr.Events()), tick(), m.spin.Tick, textarea.Blink)
}

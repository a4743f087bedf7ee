package channels

import (
	"errors"
	"testing"

	"opsagent/pkg/api"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubChannel struct{ id string }

func (s *stubChannel) ID() string                            { return s.id }
func (s *stubChannel) Start(api.ChannelContext) error        { return nil }
func (s *stubChannel) Stop() error                           { return nil }
func (s *stubChannel) Send(api.SessionContext, string) error { return nil }

type stubFactory struct {
	id   string
	err  error
	skip bool
	deps *Deps
}

func (f *stubFactory) Create(_ jsoniter.RawMessage, deps *Deps) (api.Channel, error) {
	f.deps = deps
	if f.err != nil {
		return nil, f.err
	}
	if f.skip {
		return nil, nil
	}
	return &stubChannel{id: f.id}, nil
}

func TestLoadFromConfig(t *testing.T) {
	ok := &stubFactory{id: "stub-ok"}
	RegisterChannel("stub-ok", ok)
	RegisterChannel("stub-broken", &stubFactory{err: errors.New("bad token")})
	RegisterChannel("stub-off", &stubFactory{skip: true})

	got := LoadFromConfig(map[string]jsoniter.RawMessage{
		"stub-ok":     jsoniter.RawMessage(`{}`),
		"stub-broken": jsoniter.RawMessage(`{}`),
		"stub-off":    jsoniter.RawMessage(`{}`),
		"stub-absent": jsoniter.RawMessage(`{}`),
	}, nil)

	require.Len(t, got, 1)
	assert.Equal(t, "stub-ok", got[0].ID())
	require.NotNil(t, ok.deps)
	assert.NotNil(t, ok.deps.System)
	assert.Contains(t, RegisteredChannels(), "stub-ok")
}
